package emotion

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"poetry_server/core/domain"
	"poetry_server/core/port/out"
	"poetry_server/pkg/logger"
)

const cacheKeyPrefix = "poetry:emotion:"

// CachedClassifier memoizes classification results.
// Classification is deterministic for a fixed model, so a cached result is
// indistinguishable from a fresh one. Cache faults never fail a request.
type CachedClassifier struct {
	next      TextClassifier
	cache     out.JSONCache
	ttl       time.Duration
	namespace string
}

// NewCachedClassifier wraps next. namespace should identify the model so that
// swapping models does not serve stale results.
func NewCachedClassifier(next TextClassifier, cache out.JSONCache, namespace string, ttl time.Duration) *CachedClassifier {
	return &CachedClassifier{
		next:      next,
		cache:     cache,
		ttl:       ttl,
		namespace: namespace,
	}
}

func (c *CachedClassifier) Classify(ctx context.Context, text string) (*domain.ClassificationResult, error) {
	key := c.key(text)

	var cached domain.ClassificationResult
	found, err := c.cache.GetJSON(ctx, key, &cached)
	if err != nil {
		logger.WithError(err).Warn("classification cache read failed")
	} else if found && cached.Emotion.IsValid() && len(cached.Distribution) == len(domain.AllEmotions) {
		return &cached, nil
	}

	result, err := c.next.Classify(ctx, text)
	if err != nil {
		return nil, err
	}

	if err := c.cache.SetJSON(ctx, key, result, c.ttl); err != nil {
		logger.WithError(err).Warn("classification cache write failed")
	}
	return result, nil
}

func (c *CachedClassifier) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return cacheKeyPrefix + c.namespace + ":" + hex.EncodeToString(sum[:])
}
