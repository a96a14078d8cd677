package in

import (
	"context"

	"poetry_server/core/domain"
)

type RetrievalService interface {
	// Retrieve classifies text and samples one poem for the predicted emotion.
	Retrieve(ctx context.Context, text string) (*domain.RetrievalResult, error)

	// Info describes the loaded model labels and corpus.
	Info() *ServiceInfo
}

type ServiceInfo struct {
	Emotions     []domain.EmotionTag `json:"emotions"`
	ModelBackend string              `json:"model_backend"`
	TotalPoems   int                 `json:"total_poems"`
	Corpus       domain.CorpusStats  `json:"corpus"`
}
