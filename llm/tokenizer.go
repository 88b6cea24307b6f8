package llm

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter approximates token counts for prompt budgeting. It uses the
// cl100k_base encoding when available and falls back to a bytes/4 heuristic
// when the encoding cannot be loaded (offline environments).
type TokenCounter struct {
	once     sync.Once
	encoding *tiktoken.Tiktoken
}

// NewTokenCounter creates a token counter. Encoding load is deferred to the
// first Count call.
func NewTokenCounter() *TokenCounter {
	return &TokenCounter{}
}

// Count returns the approximate token count of text.
func (t *TokenCounter) Count(text string) int {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			t.encoding = enc
		}
	})

	if t.encoding != nil {
		return len(t.encoding.Encode(text, nil, nil))
	}
	// Rough heuristic: one token per four bytes of text.
	return (len(text) + 3) / 4
}

// CountAll sums the token counts of all texts.
func (t *TokenCounter) CountAll(texts ...string) int {
	total := 0
	for _, s := range texts {
		total += t.Count(s)
	}
	return total
}
