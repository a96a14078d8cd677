// Package retrieval answers poem queries: classify the text, then sample a matching poem.
package retrieval

import (
	"context"
	"fmt"
	"strings"

	"poetry_server/core/domain"
	"poetry_server/core/port/in"
	"poetry_server/core/service/emotion"
	"poetry_server/pkg/apperr"
	"poetry_server/pkg/logger"
)

// PoemSampler selects a poem for an emotion.
type PoemSampler interface {
	Sample(tag domain.EmotionTag) (domain.PoemRecord, bool)
	Stats() domain.CorpusStats
}

// Service implements in.RetrievalService.
type Service struct {
	classifier emotion.TextClassifier
	corpus     PoemSampler
	emotions   []domain.EmotionTag
	backend    string
}

var _ in.RetrievalService = (*Service)(nil)

// NewService assembles the retrieval pipeline. emotions lists the tags the
// classifier can emit, in model order.
func NewService(classifier emotion.TextClassifier, corpus PoemSampler, emotions []domain.EmotionTag, backend string) *Service {
	return &Service{
		classifier: classifier,
		corpus:     corpus,
		emotions:   append([]domain.EmotionTag(nil), emotions...),
		backend:    backend,
	}
}

// Retrieve classifies text and returns it with at most one matching poem.
// Every failure is returned as an *apperr.AppError.
func (s *Service) Retrieve(ctx context.Context, text string) (*domain.RetrievalResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperr.InvalidInput("text", "no text provided")
	}

	cls, err := s.classify(ctx, text)
	if err != nil {
		return nil, err
	}

	dist := make(map[domain.EmotionTag]float64, len(domain.AllEmotions))
	for _, tag := range domain.AllEmotions {
		dist[tag] = 0
	}
	for tag, p := range cls.Distribution {
		dist[tag] = p
	}

	result := &domain.RetrievalResult{
		Text:         text,
		Emotion:      cls.Emotion,
		Confidence:   cls.Confidence,
		Distribution: dist,
		Poems:        []domain.PoemRecord{},
	}
	if poem, ok := s.corpus.Sample(cls.Emotion); ok {
		result.Poems = append(result.Poems, poem)
	}
	result.PoemCount = len(result.Poems)

	return result, nil
}

func (s *Service) classify(ctx context.Context, text string) (cls *domain.ClassificationResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.WithContext(ctx).WithField("panic", fmt.Sprintf("%v", r)).Error("classifier panicked")
			cls, err = nil, apperr.ClassificationFailed(fmt.Errorf("classifier panic: %v", r))
		}
	}()

	cls, err = s.classifier.Classify(ctx, text)
	if err != nil {
		if apperr.IsAppError(err) {
			return nil, err
		}
		return nil, apperr.ClassificationFailed(err)
	}
	if cls == nil || !cls.Emotion.IsValid() {
		return nil, apperr.ClassificationFailed(fmt.Errorf("classifier returned no emotion"))
	}
	return cls, nil
}

// Info describes the loaded labels and corpus.
func (s *Service) Info() *in.ServiceInfo {
	stats := s.corpus.Stats()
	return &in.ServiceInfo{
		Emotions:     append([]domain.EmotionTag(nil), s.emotions...),
		ModelBackend: s.backend,
		TotalPoems:   stats.Total,
		Corpus:       stats,
	}
}
