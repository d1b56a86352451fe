package cost

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter counts prompt tokens for content estimates.
type TokenCounter interface {
	CountTokens(text string) int
}

// TiktokenCounter counts with the cl100k_base encoding, loaded on first use.
// When the encoding cannot be loaded it falls back to EstimateTokens.
type TiktokenCounter struct {
	once     sync.Once
	encoding *tiktoken.Tiktoken
}

func (c *TiktokenCounter) CountTokens(text string) int {
	c.once.Do(func() {
		if enc, err := tiktoken.GetEncoding("cl100k_base"); err == nil {
			c.encoding = enc
		}
	})
	if c.encoding != nil {
		return len(c.encoding.Encode(text, nil, nil))
	}
	return EstimateTokens(text)
}

// EstimateTokens is a heuristic count: max(runes/4, word count).
func EstimateTokens(text string) int {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0
	}
	estimate := len([]rune(trimmed)) / 4
	if words := len(strings.Fields(trimmed)); estimate < words {
		estimate = words
	}
	if estimate == 0 {
		estimate = 1
	}
	return estimate
}

// HeuristicCounter counts with EstimateTokens only.
type HeuristicCounter struct{}

func (HeuristicCounter) CountTokens(text string) int {
	return EstimateTokens(text)
}
