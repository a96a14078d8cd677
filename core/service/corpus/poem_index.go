package corpus

import (
	"math/rand"
	"strings"

	"poetry_server/core/domain"
	"poetry_server/core/port/out"
	"poetry_server/pkg/apperr"

	"github.com/rs/zerolog"
)

const (
	DefaultTextColumn    = "poem"
	DefaultEmotionColumn = "emotion"
)

// Picker returns a uniformly distributed index in [0, n).
type Picker func(n int) int

// BuildOptions configures Build.
type BuildOptions struct {
	TextColumn    string
	EmotionColumn string
	Picker        Picker // defaults to math/rand/v2
	Log           *zerolog.Logger
}

// Index is the emotion-partitioned corpus. It is immutable after Build and
// safe for concurrent reads.
type Index struct {
	partitions map[domain.EmotionTag][]domain.PoemRecord
	stats      domain.CorpusStats
	pick       Picker
}

// Build normalizes a dataset table into an Index.
// A missing column is a configuration error; bad rows are dropped.
func Build(table *out.Table, opts BuildOptions) (*Index, error) {
	if opts.TextColumn == "" {
		opts.TextColumn = DefaultTextColumn
	}
	if opts.EmotionColumn == "" {
		opts.EmotionColumn = DefaultEmotionColumn
	}
	if opts.Picker == nil {
		opts.Picker = rand.Intn
	}
	if table == nil {
		return nil, apperr.ConfigError("poem dataset is empty")
	}
	for _, col := range []string{opts.TextColumn, opts.EmotionColumn} {
		if !table.HasColumn(col) {
			return nil, apperr.ConfigErrorf("poem dataset has no %q column", col).
				WithDetail("expected", []string{opts.TextColumn, opts.EmotionColumn}).
				WithDetail("found", table.Columns)
		}
	}

	idx := &Index{
		partitions: make(map[domain.EmotionTag][]domain.PoemRecord, len(domain.AllEmotions)),
		stats: domain.CorpusStats{
			PerEmotion: make(map[domain.EmotionTag]int, len(domain.AllEmotions)),
			RowsRead:   len(table.Rows),
		},
		pick: opts.Picker,
	}
	for _, tag := range domain.AllEmotions {
		idx.partitions[tag] = nil
		idx.stats.PerEmotion[tag] = 0
	}

	for _, row := range table.Rows {
		text, okText := row[opts.TextColumn]
		rawEmotion, okEmotion := row[opts.EmotionColumn]
		if !okText || !okEmotion || strings.TrimSpace(text) == "" || strings.TrimSpace(rawEmotion) == "" {
			idx.stats.DroppedMissing++
			continue
		}

		tag, ok := NormalizeEmotion(rawEmotion)
		if !ok {
			idx.stats.DroppedUnknown++
			continue
		}

		idx.partitions[tag] = append(idx.partitions[tag], domain.PoemRecord{Text: text, Emotion: tag})
		idx.stats.PerEmotion[tag]++
		idx.stats.Total++
	}

	if opts.Log != nil {
		ev := opts.Log.Info().
			Int("rows", idx.stats.RowsRead).
			Int("total", idx.stats.Total).
			Int("dropped_missing", idx.stats.DroppedMissing).
			Int("dropped_unknown", idx.stats.DroppedUnknown)
		for _, tag := range domain.AllEmotions {
			ev = ev.Int(string(tag), idx.stats.PerEmotion[tag])
		}
		ev.Msg("poem corpus indexed")
	}

	return idx, nil
}

// Sample returns a uniformly random poem tagged with tag, or false if none exist.
func (i *Index) Sample(tag domain.EmotionTag) (domain.PoemRecord, bool) {
	poems := i.partitions[tag]
	if len(poems) == 0 {
		return domain.PoemRecord{}, false
	}
	return poems[i.pick(len(poems))], true
}

// Poems returns a copy of the partition for tag in dataset order.
func (i *Index) Poems(tag domain.EmotionTag) []domain.PoemRecord {
	return append([]domain.PoemRecord(nil), i.partitions[tag]...)
}

// Count returns the number of poems tagged with tag.
func (i *Index) Count(tag domain.EmotionTag) int {
	return len(i.partitions[tag])
}

// Stats returns build statistics.
func (i *Index) Stats() domain.CorpusStats {
	s := i.stats
	s.PerEmotion = make(map[domain.EmotionTag]int, len(i.stats.PerEmotion))
	for k, v := range i.stats.PerEmotion {
		s.PerEmotion[k] = v
	}
	return s
}
