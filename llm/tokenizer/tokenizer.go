package tokenizer

import (
	"fmt"
	"strings"
)

// Tokenizer是统一的代号计数界面.
type Tokenizer interface {
	// CountTokens 返回给定文本的 token 数.
	CountTokens(text string) (int, error)

	// Name 返回分词器的名称.
	Name() string
}

// Kind selects a Tokenizer implementation.
type Kind string

const (
	KindEstimator Kind = "estimator"
	KindTiktoken  Kind = "tiktoken"
)

// New builds the tokenizer selected by kind for model.
// An empty kind selects the heuristic estimator.
func New(kind Kind, model string) (Tokenizer, error) {
	switch Kind(strings.ToLower(string(kind))) {
	case "", KindEstimator:
		return NewEstimatorTokenizer(), nil
	case KindTiktoken:
		return NewTiktokenTokenizer(model), nil
	default:
		return nil, fmt.Errorf("unknown tokenizer kind: %q", kind)
	}
}
