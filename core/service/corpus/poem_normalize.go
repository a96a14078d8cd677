// Package corpus builds the emotion-partitioned poem index.
package corpus

import (
	"strings"

	"poetry_server/core/domain"
)

// emotionSynonyms maps lowercased, trimmed dataset labels to canonical tags.
var emotionSynonyms = map[string]domain.EmotionTag{
	"joy":       domain.EmotionJoy,
	"فرح":       domain.EmotionJoy,
	"سعادة":     domain.EmotionJoy,
	"happiness": domain.EmotionJoy,
	"happy":     domain.EmotionJoy,

	"love": domain.EmotionLove,
	"حب":   domain.EmotionLove,

	"sad":     domain.EmotionSad,
	"حزن":     domain.EmotionSad,
	"sadness": domain.EmotionSad,
}

// NormalizeEmotion maps a free-form dataset label to a canonical tag.
func NormalizeEmotion(raw string) (domain.EmotionTag, bool) {
	tag, ok := emotionSynonyms[strings.TrimSpace(strings.ToLower(raw))]
	return tag, ok
}
