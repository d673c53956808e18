package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	TelegramToken    string
	WebhookPublicURL string
	Port             string
	DBPath           string
	LogLevel         string
	LogPretty        bool

	PricesCSV    string // optional price table loaded at startup
	NewsDir      string // directory of <ticker>_news.csv files
	CompaniesCSV string // Symbol,Security reference table

	Classifier      string // openai | onnx
	OpenAIKey       string
	OpenAIModel     string
	ONNXModelPath   string
	ONNXVocabPath   string
	ONNXLibraryPath string

	BlendStrategy     string // adaptive | detailed
	ClassifierFailure string // propagate | neutral
	NameMatch         string // strict | permissive
	ScorerWorkers     int
	YahooRPS          int
}

func mustEnv(k string) (string, error) {
	v := os.Getenv(k)
	if v == "" {
		return "", fmt.Errorf("missing env %s", k)
	}
	return v, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvAsInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvAsBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// Load reads configuration from the environment, after loading .env if present.
func Load() (Config, error) {
	_ = godotenv.Load()

	token, err := mustEnv("TELEGRAM_BOT_TOKEN")
	if err != nil {
		return Config{}, err
	}
	webhook, err := mustEnv("WEBHOOK_PUBLIC_URL")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		TelegramToken:     token,
		WebhookPublicURL:  webhook,
		Port:              getEnv("PORT", "9095"),
		DBPath:            getEnv("DB_PATH", "/app/data/lens.db"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogPretty:         getEnvAsBool("LOG_PRETTY", false),
		PricesCSV:         getEnv("PRICES_CSV", ""),
		NewsDir:           getEnv("NEWS_DIR", ""),
		CompaniesCSV:      getEnv("COMPANIES_CSV", ""),
		Classifier:        strings.ToLower(getEnv("CLASSIFIER", "openai")),
		OpenAIKey:         getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:       getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		ONNXModelPath:     getEnv("ONNX_MODEL_PATH", ""),
		ONNXVocabPath:     getEnv("ONNX_VOCAB_PATH", ""),
		ONNXLibraryPath:   getEnv("ONNX_LIBRARY_PATH", ""),
		BlendStrategy:     strings.ToLower(getEnv("BLEND_STRATEGY", "adaptive")),
		ClassifierFailure: strings.ToLower(getEnv("CLASSIFIER_FAILURE", "propagate")),
		NameMatch:         strings.ToLower(getEnv("NAME_MATCH", "strict")),
		ScorerWorkers:     getEnvAsInt("SCORER_WORKERS", 1),
		YahooRPS:          getEnvAsInt("YAHOO_RPS", 2),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks enumerated settings and backend prerequisites.
func (c Config) Validate() error {
	switch c.Classifier {
	case "openai":
		if c.OpenAIKey == "" {
			return fmt.Errorf("CLASSIFIER=openai requires OPENAI_API_KEY")
		}
	case "onnx":
		if c.ONNXModelPath == "" || c.ONNXVocabPath == "" {
			return fmt.Errorf("CLASSIFIER=onnx requires ONNX_MODEL_PATH and ONNX_VOCAB_PATH")
		}
	default:
		return fmt.Errorf("unknown CLASSIFIER %q (use openai or onnx)", c.Classifier)
	}
	if c.BlendStrategy != "adaptive" && c.BlendStrategy != "detailed" {
		return fmt.Errorf("unknown BLEND_STRATEGY %q (use adaptive or detailed)", c.BlendStrategy)
	}
	if c.ClassifierFailure != "propagate" && c.ClassifierFailure != "neutral" {
		return fmt.Errorf("unknown CLASSIFIER_FAILURE %q (use propagate or neutral)", c.ClassifierFailure)
	}
	if c.NameMatch != "strict" && c.NameMatch != "permissive" {
		return fmt.Errorf("unknown NAME_MATCH %q (use strict or permissive)", c.NameMatch)
	}
	if c.ScorerWorkers < 1 {
		return fmt.Errorf("SCORER_WORKERS must be >= 1, got %d", c.ScorerWorkers)
	}
	if c.YahooRPS < 1 {
		return fmt.Errorf("YAHOO_RPS must be >= 1, got %d", c.YahooRPS)
	}
	return nil
}
