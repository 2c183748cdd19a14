package tokenizer

import (
	"strings"
	"unicode/utf8"
)

// EstimatorTokenizer is a character-count-based token estimator:
// roughly 4 characters per token, plus a quarter token per space or newline.
// It is deterministic and needs no model data.
type EstimatorTokenizer struct{}

// NewEstimatorTokenizer creates the heuristic estimator.
func NewEstimatorTokenizer() *EstimatorTokenizer {
	return &EstimatorTokenizer{}
}

// CountTokens never fails.
func (e *EstimatorTokenizer) CountTokens(text string) (int, error) {
	return Estimate(text), nil
}

func (e *EstimatorTokenizer) Name() string {
	return "estimator"
}

// Estimate returns the heuristic token count of text.
// Empty text costs 0; any other text costs at least 1.
func Estimate(text string) int {
	if text == "" {
		return 0
	}
	estimated := utf8.RuneCountInString(text) / 4
	whitespace := strings.Count(text, " ") + strings.Count(text, "\n")
	estimated += whitespace / 4
	if estimated < 1 {
		estimated = 1
	}
	return estimated
}
