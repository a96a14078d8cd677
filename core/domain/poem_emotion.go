package domain

import "strings"

// EmotionTag is one of the canonical emotion categories.
type EmotionTag string

const (
	EmotionJoy  EmotionTag = "joy"
	EmotionLove EmotionTag = "love"
	EmotionSad  EmotionTag = "sad"
)

// AllEmotions lists every tag in canonical index order.
var AllEmotions = []EmotionTag{EmotionJoy, EmotionLove, EmotionSad}

func (t EmotionTag) String() string {
	return string(t)
}

// IsValid reports whether t belongs to the closed tag set.
func (t EmotionTag) IsValid() bool {
	switch t {
	case EmotionJoy, EmotionLove, EmotionSad:
		return true
	default:
		return false
	}
}

// ParseEmotionTag parses a canonical tag name, ignoring case and surrounding whitespace.
// Synonyms are not accepted here; see the corpus normalizer for those.
func ParseEmotionTag(s string) (EmotionTag, bool) {
	tag := EmotionTag(strings.ToLower(strings.TrimSpace(s)))
	if !tag.IsValid() {
		return "", false
	}
	return tag, true
}

// EmotionNames returns the tag names in canonical order.
func EmotionNames() []string {
	names := make([]string, len(AllEmotions))
	for i, t := range AllEmotions {
		names[i] = string(t)
	}
	return names
}

// ClassificationResult is the classifier output for one text.
type ClassificationResult struct {
	Emotion      EmotionTag             `json:"emotion"`
	Confidence   float64                `json:"confidence"`
	Distribution map[EmotionTag]float64 `json:"all_probabilities"`
}

// PoemRecord is a single normalized corpus entry.
type PoemRecord struct {
	Text    string     `json:"text"`
	Emotion EmotionTag `json:"emotion"`
}

// RetrievalResult is the combined answer to one retrieval query.
type RetrievalResult struct {
	Text         string                 `json:"text"`
	Emotion      EmotionTag             `json:"emotion"`
	Confidence   float64                `json:"confidence"`
	Distribution map[EmotionTag]float64 `json:"all_probabilities"`
	Poems        []PoemRecord           `json:"poetry"`
	PoemCount    int                    `json:"poetry_count"`
}

// CorpusStats summarizes a built corpus.
type CorpusStats struct {
	PerEmotion     map[EmotionTag]int `json:"per_emotion"`
	Total          int                `json:"total"`
	RowsRead       int                `json:"rows_read"`
	DroppedMissing int                `json:"dropped_missing"`
	DroppedUnknown int                `json:"dropped_unknown"`
}
