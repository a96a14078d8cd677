package out

import "context"

// Encoding is the tokenized, fixed-length form of one input text.
type Encoding struct {
	IDs           []int64
	AttentionMask []int64
	TypeIDs       []int64
	Tokens        []string

	// Text is the portion of the input that survived truncation.
	Text      string
	Truncated bool
}

// Tokenizer turns raw text into a model encoding of exactly maxLen positions.
type Tokenizer interface {
	Encode(text string, maxLen int) (*Encoding, error)
}

// ScoreModel returns one raw score (logit) per output class, in class index order.
type ScoreModel interface {
	Name() string
	Scores(ctx context.Context, enc *Encoding) ([]float64, error)
}

// ModelHealthChecker is implemented by score models that can report readiness.
type ModelHealthChecker interface {
	Ready(ctx context.Context) error
}
