// Package emotion turns raw text into a canonical emotion distribution.
package emotion

import (
	"regexp"
	"sort"

	"poetry_server/core/domain"
	"poetry_server/pkg/apperr"
)

// placeholderLabel matches the generic labels a model gets when it was exported
// without an id2label table.
var placeholderLabel = regexp.MustCompile(`(?i)^\s*label_\d+\s*$`)

// trainingLabelOrder is the class order used when the emotion model was trained.
// It replaces placeholder label sets wholesale.
var trainingLabelOrder = [...]domain.EmotionTag{
	0: domain.EmotionJoy,
	1: domain.EmotionLove,
	2: domain.EmotionSad,
}

// LabelMap is a validated, bidirectional index <-> tag mapping.
type LabelMap struct {
	byIndex    []domain.EmotionTag
	byTag      map[domain.EmotionTag]int
	overridden bool
}

// ResolveLabels validates a model's raw index->label map and returns the canonical mapping.
// Any placeholder label discards the raw map in favour of the training order.
// All failures are configuration errors.
func ResolveLabels(raw map[int]string) (*LabelMap, error) {
	if len(raw) != len(domain.AllEmotions) {
		return nil, apperr.ConfigErrorf("model declares %d labels, expected %d", len(raw), len(domain.AllEmotions))
	}
	for i := range domain.AllEmotions {
		if _, ok := raw[i]; !ok {
			return nil, apperr.ConfigErrorf("model label index %d is missing", i)
		}
	}

	for _, label := range raw {
		if placeholderLabel.MatchString(label) {
			return newLabelMap(trainingLabelOrder[:], true), nil
		}
	}

	tags := make([]domain.EmotionTag, len(raw))
	seen := make(map[domain.EmotionTag]int, len(raw))
	for _, i := range sortedIndices(raw) {
		tag, ok := domain.ParseEmotionTag(raw[i])
		if !ok {
			return nil, apperr.ConfigErrorf("model label %d (%q) is not a known emotion", i, raw[i])
		}
		if prev, dup := seen[tag]; dup {
			return nil, apperr.ConfigErrorf("model labels %d and %d both map to %q", prev, i, tag)
		}
		seen[tag] = i
		tags[i] = tag
	}
	return newLabelMap(tags, false), nil
}

func newLabelMap(tags []domain.EmotionTag, overridden bool) *LabelMap {
	m := &LabelMap{
		byIndex:    make([]domain.EmotionTag, len(tags)),
		byTag:      make(map[domain.EmotionTag]int, len(tags)),
		overridden: overridden,
	}
	copy(m.byIndex, tags)
	for i, t := range m.byIndex {
		m.byTag[t] = i
	}
	return m
}

func sortedIndices(raw map[int]string) []int {
	idx := make([]int, 0, len(raw))
	for i := range raw {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	return idx
}

// Len returns the number of classes.
func (m *LabelMap) Len() int { return len(m.byIndex) }

// Tag returns the tag for a class index.
func (m *LabelMap) Tag(i int) domain.EmotionTag { return m.byIndex[i] }

// Index returns the class index for a tag.
func (m *LabelMap) Index(t domain.EmotionTag) (int, bool) {
	i, ok := m.byTag[t]
	return i, ok
}

// Tags returns the tags in class index order.
func (m *LabelMap) Tags() []domain.EmotionTag {
	out := make([]domain.EmotionTag, len(m.byIndex))
	copy(out, m.byIndex)
	return out
}

// IDToLabel returns a copy of the index->label direction.
func (m *LabelMap) IDToLabel() map[int]domain.EmotionTag {
	out := make(map[int]domain.EmotionTag, len(m.byIndex))
	for i, t := range m.byIndex {
		out[i] = t
	}
	return out
}

// LabelToID returns a copy of the label->index direction.
func (m *LabelMap) LabelToID() map[domain.EmotionTag]int {
	out := make(map[domain.EmotionTag]int, len(m.byTag))
	for t, i := range m.byTag {
		out[t] = i
	}
	return out
}

// Overridden reports whether the raw labels were replaced by the training order.
func (m *LabelMap) Overridden() bool { return m.overridden }
