package corpus

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"poetry_server/core/domain"
	"poetry_server/core/port/out"
	"poetry_server/pkg/apperr"

	"github.com/rs/zerolog"
)

func TestNormalizeEmotion(t *testing.T) {
	tests := []struct {
		raw    string
		want   domain.EmotionTag
		wantOK bool
	}{
		{" فرح ", domain.EmotionJoy, true},
		{"سعادة", domain.EmotionJoy, true},
		{"Happy", domain.EmotionJoy, true},
		{"HAPPINESS\t", domain.EmotionJoy, true},
		{"joy", domain.EmotionJoy, true},
		{"حب", domain.EmotionLove, true},
		{" Love", domain.EmotionLove, true},
		{"sadness", domain.EmotionSad, true},
		{"حزن\n", domain.EmotionSad, true},
		{"SAD", domain.EmotionSad, true},
		{"angry", "", false},
		{"", "", false},
		{"غضب", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := NormalizeEmotion(tt.raw)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("NormalizeEmotion(%q) = %q, %v; want %q, %v", tt.raw, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func sampleTable() *out.Table {
	return &out.Table{
		Columns: []string{"poem", "emotion", "poet"},
		Rows: []out.Row{
			{"poem": "ألا ليت الشباب يعود يوماً", "emotion": " فرح ", "poet": "أبو العتاهية"},
			{"poem": "قفا نبك من ذكرى حبيب ومنزل", "emotion": "حزن"},
			{"poem": "missing emotion"},
			{"emotion": "joy"},
			{"poem": "   ", "emotion": "joy"},
			{"poem": "angry verse", "emotion": "angry"},
			{"poem": "وما الحب إلا للحبيب الأول", "emotion": "حب"},
			{"poem": "second joy", "emotion": "Happy"},
			{"poem": "blank emotion", "emotion": "  "},
		},
	}
}

func TestBuild(t *testing.T) {
	idx, err := Build(sampleTable(), BuildOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	joy := idx.Poems(domain.EmotionJoy)
	if len(joy) != 2 || joy[0].Text != "ألا ليت الشباب يعود يوماً" || joy[1].Text != "second joy" {
		t.Errorf("joy partition = %+v", joy)
	}
	if idx.Count(domain.EmotionLove) != 1 || idx.Count(domain.EmotionSad) != 1 {
		t.Errorf("love/sad counts = %d/%d", idx.Count(domain.EmotionLove), idx.Count(domain.EmotionSad))
	}

	for _, tag := range domain.AllEmotions {
		for _, p := range idx.Poems(tag) {
			if p.Emotion != tag {
				t.Errorf("poem %q in %s partition carries %q", p.Text, tag, p.Emotion)
			}
			if strings.Contains(p.Text, "angry") {
				t.Errorf("unmapped row survived: %q", p.Text)
			}
		}
	}

	stats := idx.Stats()
	if stats.RowsRead != 9 || stats.Total != 4 || stats.DroppedMissing != 4 || stats.DroppedUnknown != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestBuildCustomColumns(t *testing.T) {
	table := &out.Table{
		Columns: []string{"verse", "mood"},
		Rows: []out.Row{
			{"verse": "a", "mood": "love"},
		},
	}
	idx, err := Build(table, BuildOptions{TextColumn: "verse", EmotionColumn: "mood"})
	if err != nil {
		t.Fatal(err)
	}
	if idx.Count(domain.EmotionLove) != 1 {
		t.Errorf("love count = %d", idx.Count(domain.EmotionLove))
	}
}

func TestBuildMissingColumn(t *testing.T) {
	tests := []struct {
		name    string
		columns []string
	}{
		{"no emotion column", []string{"poem", "poet"}},
		{"no poem column", []string{"text", "emotion"}},
		{"no columns", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(&out.Table{Columns: tt.columns}, BuildOptions{})
			if !apperr.HasCode(err, apperr.CodeConfigError) {
				t.Errorf("err = %v, want CONFIG_ERROR", err)
			}
		})
	}

	if _, err := Build(nil, BuildOptions{}); !apperr.HasCode(err, apperr.CodeConfigError) {
		t.Errorf("nil table err = %v", err)
	}
}

func TestSample(t *testing.T) {
	var picked []int
	picker := func(n int) int {
		picked = append(picked, n)
		return n - 1
	}
	idx, err := Build(sampleTable(), BuildOptions{Picker: picker})
	if err != nil {
		t.Fatal(err)
	}

	poem, ok := idx.Sample(domain.EmotionJoy)
	if !ok || poem.Text != "second joy" {
		t.Errorf("Sample(joy) = %+v, %v", poem, ok)
	}
	if len(picked) != 1 || picked[0] != 2 {
		t.Errorf("picker called with %v, want [2]", picked)
	}
}

func TestSampleEmptyPartition(t *testing.T) {
	table := &out.Table{
		Columns: []string{"poem", "emotion"},
		Rows:    []out.Row{{"poem": "x", "emotion": "joy"}},
	}
	idx, err := Build(table, BuildOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := idx.Sample(domain.EmotionSad); ok {
		t.Error("expected no poem for empty sad partition")
	}
	if _, ok := idx.Sample(domain.EmotionTag("angry")); ok {
		t.Error("expected no poem for unknown tag")
	}
}

func TestSampleCoversPartitionConcurrently(t *testing.T) {
	rows := make([]out.Row, 0, 5)
	for _, s := range []string{"a", "b", "c", "d", "e"} {
		rows = append(rows, out.Row{"poem": s, "emotion": "sad"})
	}
	idx, err := Build(&out.Table{Columns: []string{"poem", "emotion"}, Rows: rows}, BuildOptions{})
	if err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	seen := make(map[string]int)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 250; i++ {
				p, ok := idx.Sample(domain.EmotionSad)
				if !ok {
					t.Error("sample failed")
					return
				}
				mu.Lock()
				seen[p.Text]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != 5 {
		t.Errorf("2000 uniform draws over 5 poems only hit %v", seen)
	}
}

func TestBuildLogsSummary(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)
	if _, err := Build(sampleTable(), BuildOptions{Log: &log}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"total":4`) || !strings.Contains(buf.String(), "poem corpus indexed") {
		t.Errorf("log output = %s", buf.String())
	}
}
