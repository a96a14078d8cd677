package retrieval

import (
	"context"
	"errors"
	"math"
	"testing"

	"poetry_server/core/domain"
	"poetry_server/core/port/out"
	"poetry_server/core/service/corpus"
	"poetry_server/core/service/emotion"
	"poetry_server/pkg/apperr"
)

type stubTokenizer struct{}

func (stubTokenizer) Encode(text string, maxLen int) (*out.Encoding, error) {
	return &out.Encoding{Text: text}, nil
}

// probabilityModel emits log-probabilities so the softmax reproduces them exactly.
type probabilityModel struct {
	probs []float64
	calls int
}

func (m *probabilityModel) Name() string { return "probability" }

func (m *probabilityModel) Scores(ctx context.Context, enc *out.Encoding) ([]float64, error) {
	m.calls++
	scores := make([]float64, len(m.probs))
	for i, p := range m.probs {
		scores[i] = math.Log(p)
	}
	return scores, nil
}

type panickyClassifier struct{}

func (panickyClassifier) Classify(ctx context.Context, text string) (*domain.ClassificationResult, error) {
	panic("tensor shape mismatch")
}

type failingClassifier struct{ err error }

func (f failingClassifier) Classify(ctx context.Context, text string) (*domain.ClassificationResult, error) {
	return nil, f.err
}

func newIndex(t *testing.T, rows ...out.Row) *corpus.Index {
	t.Helper()
	idx, err := corpus.Build(&out.Table{Columns: []string{"poem", "emotion"}, Rows: rows}, corpus.BuildOptions{})
	if err != nil {
		t.Fatal(err)
	}
	return idx
}

func newService(t *testing.T, model *probabilityModel, idx *corpus.Index) *Service {
	t.Helper()
	labels, err := emotion.ResolveLabels(map[int]string{0: "LABEL_0", 1: "LABEL_1", 2: "LABEL_2"})
	if err != nil {
		t.Fatal(err)
	}
	c := emotion.NewClassifier(stubTokenizer{}, model, labels, emotion.ClassifierConfig{})
	return NewService(c, idx, labels.Tags(), "test")
}

func TestRetrieveJoy(t *testing.T) {
	model := &probabilityModel{probs: []float64{0.91, 0.06, 0.03}}
	idx := newIndex(t,
		out.Row{"poem": "ألا ليت الشباب يعود يوماً", "emotion": "فرح"},
		out.Row{"poem": "قفا نبك", "emotion": "حزن"},
	)
	svc := newService(t, model, idx)

	result, err := svc.Retrieve(context.Background(), "أنا سعيد جداً اليوم")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Emotion != domain.EmotionJoy {
		t.Errorf("emotion = %s, want joy", result.Emotion)
	}
	if math.Abs(result.Confidence-0.91) > 1e-9 {
		t.Errorf("confidence = %v, want 0.91", result.Confidence)
	}
	if result.PoemCount != 1 || len(result.Poems) != 1 {
		t.Fatalf("poem_count = %d, poems = %v", result.PoemCount, result.Poems)
	}
	if result.Poems[0].Emotion != domain.EmotionJoy {
		t.Errorf("poem emotion = %s", result.Poems[0].Emotion)
	}
	if result.Text != "أنا سعيد جداً اليوم" {
		t.Errorf("text = %q", result.Text)
	}
}

func TestRetrieveInvariants(t *testing.T) {
	idx := newIndex(t,
		out.Row{"poem": "j", "emotion": "joy"},
		out.Row{"poem": "l", "emotion": "love"},
	)
	cases := [][]float64{
		{0.91, 0.06, 0.03},
		{0.1, 0.3, 0.6},
		{0.3333, 0.3333, 0.3334},
		{1e-9, 1 - 2e-9, 1e-9},
	}

	for _, probs := range cases {
		svc := newService(t, &probabilityModel{probs: probs}, idx)
		result, err := svc.Retrieve(context.Background(), "  some text  ")
		if err != nil {
			t.Fatal(err)
		}

		var sum float64
		best := domain.AllEmotions[0]
		for _, tag := range domain.AllEmotions {
			p, ok := result.Distribution[tag]
			if !ok {
				t.Errorf("%v: distribution missing %s", probs, tag)
			}
			if p > result.Distribution[best] {
				best = tag
			}
			sum += p
		}
		if math.Abs(sum-1) > 1e-3 {
			t.Errorf("%v: distribution sum = %v", probs, sum)
		}
		if result.Emotion != best {
			t.Errorf("%v: emotion = %s, argmax = %s", probs, result.Emotion, best)
		}
		if result.PoemCount != len(result.Poems) || result.PoemCount > 1 {
			t.Errorf("%v: poem_count = %d, poems = %d", probs, result.PoemCount, len(result.Poems))
		}
		if result.Text != "some text" {
			t.Errorf("text not trimmed: %q", result.Text)
		}
	}
}

func TestRetrieveEmptyText(t *testing.T) {
	for _, text := range []string{"", "   ", "\n\t"} {
		model := &probabilityModel{probs: []float64{0.5, 0.3, 0.2}}
		svc := newService(t, model, newIndex(t))

		_, err := svc.Retrieve(context.Background(), text)
		if !apperr.HasCode(err, apperr.CodeInvalidInput) {
			t.Errorf("Retrieve(%q) err = %v, want INVALID_INPUT", text, err)
		}
		if model.calls != 0 {
			t.Errorf("Retrieve(%q) invoked the model %d times", text, model.calls)
		}
	}
}

func TestRetrieveEmptyCategory(t *testing.T) {
	model := &probabilityModel{probs: []float64{0.1, 0.2, 0.7}}
	idx := newIndex(t, out.Row{"poem": "j", "emotion": "joy"})
	svc := newService(t, model, idx)

	result, err := svc.Retrieve(context.Background(), "حزين")
	if err != nil {
		t.Fatalf("empty category must not be an error: %v", err)
	}
	if result.Emotion != domain.EmotionSad {
		t.Errorf("emotion = %s, want sad", result.Emotion)
	}
	if result.PoemCount != 0 {
		t.Errorf("poem_count = %d, want 0", result.PoemCount)
	}
	if result.Poems == nil || len(result.Poems) != 0 {
		t.Errorf("poems = %#v, want empty non-nil slice", result.Poems)
	}
}

func TestRetrieveIdempotentClassification(t *testing.T) {
	idx := newIndex(t,
		out.Row{"poem": "a", "emotion": "love"},
		out.Row{"poem": "b", "emotion": "love"},
		out.Row{"poem": "c", "emotion": "love"},
	)
	svc := newService(t, &probabilityModel{probs: []float64{0.2, 0.75, 0.05}}, idx)

	first, err := svc.Retrieve(context.Background(), "أحبك")
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		got, err := svc.Retrieve(context.Background(), "أحبك")
		if err != nil {
			t.Fatal(err)
		}
		if got.Emotion != first.Emotion || got.Confidence != first.Confidence {
			t.Fatalf("classification changed: %+v vs %+v", got, first)
		}
		for tag, p := range first.Distribution {
			if got.Distribution[tag] != p {
				t.Fatalf("distribution changed for %s", tag)
			}
		}
	}
}

func TestRetrieveClassificationFailure(t *testing.T) {
	idx := newIndex(t, out.Row{"poem": "j", "emotion": "joy"})
	tests := []struct {
		name       string
		classifier emotion.TextClassifier
	}{
		{"plain error", failingClassifier{err: errors.New("inference server down")}},
		{"app error", failingClassifier{err: apperr.ClassificationFailed(errors.New("bad logits"))}},
		{"nil result", failingClassifier{}},
		{"panic", panickyClassifier{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(tt.classifier, idx, domain.AllEmotions, "test")
			_, err := svc.Retrieve(context.Background(), "text")
			if !apperr.HasCode(err, apperr.CodeClassificationFailed) {
				t.Errorf("err = %v, want CLASSIFICATION_FAILED", err)
			}

			// a failed request leaves the service usable
			if _, err := svc.Retrieve(context.Background(), ""); !apperr.HasCode(err, apperr.CodeInvalidInput) {
				t.Errorf("follow-up err = %v", err)
			}
		})
	}
}

func TestInfo(t *testing.T) {
	idx := newIndex(t,
		out.Row{"poem": "j", "emotion": "joy"},
		out.Row{"poem": "x", "emotion": "angry"},
	)
	svc := NewService(failingClassifier{}, idx, domain.AllEmotions, "kserve")

	info := svc.Info()
	if info.TotalPoems != 1 || info.ModelBackend != "kserve" || len(info.Emotions) != 3 {
		t.Errorf("info = %+v", info)
	}
	if info.Corpus.DroppedUnknown != 1 {
		t.Errorf("dropped_unknown = %d", info.Corpus.DroppedUnknown)
	}
}
