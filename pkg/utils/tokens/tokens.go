package tokens

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	"github.com/secmon-lab/recall/pkg/utils/logging"
)

const (
	encodingName = "cl100k_base"
	// runesPerToken approximates token size when the encoder is unavailable
	runesPerToken = 4
)

// Budget truncates text to a token limit. The encoder is loaded on first use;
// if it cannot be loaded the budget falls back to a rune estimate.
type Budget struct {
	limit int

	once sync.Once
	enc  *tiktoken.Tiktoken
}

// NewBudget creates a budget of limit tokens. limit <= 0 disables truncation.
func NewBudget(limit int) *Budget {
	return &Budget{limit: limit}
}

func (b *Budget) Limit() int {
	return b.limit
}

func (b *Budget) encoder() *tiktoken.Tiktoken {
	b.once.Do(func() {
		enc, err := tiktoken.GetEncoding(encodingName)
		if err != nil {
			logging.Default().Warn("tokenizer unavailable, using rune estimate", "error", err)
			return
		}
		b.enc = enc
	})
	return b.enc
}

// Truncate returns text cut to at most limit tokens and whether it was cut
func (b *Budget) Truncate(text string) (string, bool) {
	return b.TruncateTo(text, b.limit)
}

// TruncateTo is Truncate with an explicit limit, for callers splitting the
// budget across several texts.
func (b *Budget) TruncateTo(text string, limit int) (string, bool) {
	// a token is at least one byte, so short text never needs encoding
	if limit <= 0 || len(text) <= limit {
		return text, false
	}

	if enc := b.encoder(); enc != nil {
		ids := enc.Encode(text, nil, nil)
		if len(ids) <= limit {
			return text, false
		}
		return enc.Decode(ids[:limit]), true
	}

	maxRunes := limit * runesPerToken
	if utf8.RuneCountInString(text) <= maxRunes {
		return text, false
	}
	runes := []rune(text)
	return string(runes[:maxRunes]), true
}

// Count returns the number of tokens in text, estimated when the encoder is unavailable
func (b *Budget) Count(text string) int {
	if enc := b.encoder(); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return (utf8.RuneCountInString(text) + runesPerToken - 1) / runesPerToken
}
