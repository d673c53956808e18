package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	oa "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"equityLens/internal/sentiment"
)

// completer sends one system+user exchange and returns the reply text.
type completer interface {
	complete(ctx context.Context, system, user string, maxTokens int64) (string, error)
}

type chat struct {
	cli   oa.Client
	model string
}

func newChat(apiKey, model string) *chat {
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &chat{cli: oa.NewClient(option.WithAPIKey(apiKey)), model: model}
}

func (c *chat) complete(ctx context.Context, system, user string, maxTokens int64) (string, error) {
	resp, err := c.cli.Chat.Completions.New(ctx, oa.ChatCompletionNewParams{
		Model: oa.ChatModel(c.model),
		Messages: []oa.ChatCompletionMessageParamUnion{
			oa.SystemMessage(system),
			oa.UserMessage(user),
		},
		MaxTokens:   oa.Int(maxTokens),
		Temperature: oa.Float(0),
	})
	if err != nil {
		return "", fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from OpenAI")
	}
	return resp.Choices[0].Message.Content, nil
}

const classifierPrompt = `You are a financial sentiment classifier in the style of FinBERT.
Read the text and score how neutral, positive and negative it is for the company it mentions.
Reply with JSON only, no prose, exactly in this shape:
{"logits": [neutral, positive, negative]}
where each value is a real-valued logit (higher means more likely).`

// Classifier scores text with a chat model that returns three logits.
type Classifier struct {
	chat completer
}

func NewClassifier(apiKey, model string) *Classifier {
	return &Classifier{chat: newChat(apiKey, model)}
}

type logitsReply struct {
	Logits []float64 `json:"logits"`
}

func (c *Classifier) Classify(ctx context.Context, text string) (sentiment.Probabilities, error) {
	reply, err := c.chat.complete(ctx, classifierPrompt, text, 60)
	if err != nil {
		return sentiment.Probabilities{}, err
	}
	var lr logitsReply
	if err := json.Unmarshal([]byte(extractJSON(reply)), &lr); err != nil {
		return sentiment.Probabilities{}, fmt.Errorf("%w: unparseable reply %q", sentiment.ErrClassification, preview(reply))
	}
	return sentiment.Softmax(lr.Logits)
}

// extractJSON trims code fences and surrounding prose from a model reply.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return s
	}
	return s[start : end+1]
}

func preview(s string) string {
	if len(s) > 80 {
		return s[:80]
	}
	return s
}
