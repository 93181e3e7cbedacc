// Package tokenizer provides deterministic token estimation for prompts
// and responses. Estimates feed rate limiting and cost accounting, so
// identical input must always produce the identical count.
package tokenizer

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	once sync.Once
	enc  *tiktoken.Tiktoken
)

func encoding() *tiktoken.Tiktoken {
	once.Do(func() {
		e, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			enc = e
		}
	})
	return enc
}

// Estimate returns a provider-agnostic token count for the given text.
// It uses the cl100k_base encoding; when the encoding is unavailable it
// falls back to a conservative len/4 heuristic. Both paths are
// deterministic for a given input.
func Estimate(text string) int {
	if text == "" {
		return 0
	}
	e := encoding()
	if e == nil {
		return len(text)/4 + 1
	}
	return len(e.Encode(text, nil, nil))
}
