package emotion

import (
	"context"
	"fmt"
	"math"
	"time"

	"poetry_server/core/domain"
	"poetry_server/core/port/out"
	"poetry_server/pkg/apperr"
	"poetry_server/pkg/metrics"
)

// DefaultMaxTokens is the sequence length the emotion model was fine-tuned with.
const DefaultMaxTokens = 128

// reportPrecision is the number of decimal digits kept in reported probabilities.
const reportPrecision = 4

// TextClassifier classifies a text into an emotion distribution.
type TextClassifier interface {
	Classify(ctx context.Context, text string) (*domain.ClassificationResult, error)
}

// Classifier runs a tokenizer and score model and normalizes the scores.
// It holds no per-call state and is safe for concurrent use.
type Classifier struct {
	tokenizer out.Tokenizer
	model     out.ScoreModel
	labels    *LabelMap
	maxTokens int
	latency   *metrics.LatencyTracker
}

// ClassifierConfig configures a Classifier.
type ClassifierConfig struct {
	MaxTokens int
	Latency   *metrics.LatencyTracker // optional
}

// NewClassifier creates a classifier over an already validated label map.
func NewClassifier(tokenizer out.Tokenizer, model out.ScoreModel, labels *LabelMap, cfg ClassifierConfig) *Classifier {
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &Classifier{
		tokenizer: tokenizer,
		model:     model,
		labels:    labels,
		maxTokens: maxTokens,
		latency:   cfg.Latency,
	}
}

// Labels returns the label map in use.
func (c *Classifier) Labels() *LabelMap { return c.labels }

// Classify scores text. Empty text is scored like any other input.
func (c *Classifier) Classify(ctx context.Context, text string) (result *domain.ClassificationResult, err error) {
	start := time.Now()
	if c.latency != nil {
		defer func() {
			if err != nil {
				c.latency.RecordError()
				return
			}
			c.latency.Record(time.Since(start))
		}()
	}

	enc, err := c.tokenizer.Encode(text, c.maxTokens)
	if err != nil {
		return nil, apperr.ClassificationFailed(fmt.Errorf("tokenize: %w", err))
	}

	scores, err := c.model.Scores(ctx, enc)
	if err != nil {
		return nil, apperr.ClassificationFailed(fmt.Errorf("%s: %w", c.model.Name(), err))
	}
	if len(scores) != c.labels.Len() {
		return nil, apperr.ClassificationFailed(fmt.Errorf("%s returned %d scores, expected %d", c.model.Name(), len(scores), c.labels.Len()))
	}

	probs, err := Softmax(scores)
	if err != nil {
		return nil, apperr.ClassificationFailed(err)
	}

	best := Argmax(probs)
	dist := make(map[domain.EmotionTag]float64, len(probs))
	for i, p := range probs {
		dist[c.labels.Tag(i)] = Round(p, reportPrecision)
	}

	return &domain.ClassificationResult{
		Emotion:      c.labels.Tag(best),
		Confidence:   Round(probs[best], reportPrecision),
		Distribution: dist,
	}, nil
}

// Softmax converts raw scores into probabilities.
func Softmax(scores []float64) ([]float64, error) {
	if len(scores) == 0 {
		return nil, fmt.Errorf("softmax of empty score vector")
	}
	top := math.Inf(-1)
	for i, s := range scores {
		if math.IsNaN(s) || math.IsInf(s, 0) {
			return nil, fmt.Errorf("score %d is not finite: %v", i, s)
		}
		if s > top {
			top = s
		}
	}

	probs := make([]float64, len(scores))
	var sum float64
	for i, s := range scores {
		probs[i] = math.Exp(s - top)
		sum += probs[i]
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs, nil
}

// Argmax returns the index of the largest value; the lowest index wins ties.
func Argmax(values []float64) int {
	best := 0
	for i := 1; i < len(values); i++ {
		if values[i] > values[best] {
			best = i
		}
	}
	return best
}

// Round rounds v to the given number of decimal digits, half away from zero.
func Round(v float64, digits int) float64 {
	p := math.Pow(10, float64(digits))
	return math.Round(v*p) / p
}
