package sentiment

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"
)

const maxWordChars = 100

// WordPiece is an uncased BERT tokenizer over a vocab.txt file.
type WordPiece struct {
	vocab  map[string]int64
	unk    int64
	cls    int64
	sep    int64
	maxLen int
}

// LoadVocab reads one token per line; the line number is the token id.
func LoadVocab(r io.Reader, maxLen int) (*WordPiece, error) {
	vocab := make(map[string]int64)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	var id int64
	for sc.Scan() {
		tok := strings.TrimRight(sc.Text(), "\r")
		if _, dup := vocab[tok]; !dup {
			vocab[tok] = id
		}
		id++
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read vocab: %w", err)
	}
	wp := &WordPiece{vocab: vocab, maxLen: maxLen}
	for name, dst := range map[string]*int64{"[UNK]": &wp.unk, "[CLS]": &wp.cls, "[SEP]": &wp.sep} {
		v, ok := vocab[name]
		if !ok {
			return nil, fmt.Errorf("vocab is missing %s", name)
		}
		*dst = v
	}
	if wp.maxLen < 3 {
		wp.maxLen = 512
	}
	return wp, nil
}

func LoadVocabFile(path string, maxLen int) (*WordPiece, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadVocab(f, maxLen)
}

// basicTokens lowercases text and splits it on whitespace and punctuation,
// keeping each punctuation rune as its own token.
func basicTokens(text string) []string {
	var out []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
		}
	}
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsSpace(r) || unicode.IsControl(r):
			flush()
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			flush()
			out = append(out, string(r))
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return out
}

// pieces splits a word greedily into the longest vocab entries.
func (wp *WordPiece) pieces(word string) []int64 {
	runes := []rune(word)
	if len(runes) > maxWordChars {
		return []int64{wp.unk}
	}
	var ids []int64
	for start := 0; start < len(runes); {
		end := len(runes)
		found := int64(-1)
		for ; end > start; end-- {
			sub := string(runes[start:end])
			if start > 0 {
				sub = "##" + sub
			}
			if id, ok := wp.vocab[sub]; ok {
				found = id
				break
			}
		}
		if found < 0 {
			return []int64{wp.unk}
		}
		ids = append(ids, found)
		start = end
	}
	return ids
}

// Encode returns input ids, attention mask and token type ids framed by
// [CLS] and [SEP] and truncated to the maximum sequence length.
func (wp *WordPiece) Encode(text string) (ids, mask, types []int64) {
	ids = []int64{wp.cls}
	for _, w := range basicTokens(text) {
		ids = append(ids, wp.pieces(w)...)
	}
	if len(ids) > wp.maxLen-1 {
		ids = ids[:wp.maxLen-1]
	}
	ids = append(ids, wp.sep)
	mask = make([]int64, len(ids))
	types = make([]int64, len(ids))
	for i := range mask {
		mask[i] = 1
	}
	return ids, mask, types
}
