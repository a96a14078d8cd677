package http

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"poetry_server/core/domain"
	"poetry_server/core/port/in"
	"poetry_server/infra/middleware"
	"poetry_server/pkg/apperr"
	"poetry_server/pkg/metrics"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
)

type fakeService struct {
	calls  int
	gotCtx context.Context
	result *domain.RetrievalResult
	err    error
	info   in.ServiceInfo
}

func (f *fakeService) Retrieve(ctx context.Context, text string) (*domain.RetrievalResult, error) {
	f.calls++
	f.gotCtx = ctx
	if strings.TrimSpace(text) == "" {
		return nil, apperr.InvalidInput("text", "no text provided")
	}
	if f.err != nil {
		return nil, f.err
	}
	r := *f.result
	r.Text = strings.TrimSpace(text)
	return &r, nil
}

func (f *fakeService) Info() *in.ServiceInfo {
	info := f.info
	return &info
}

func newFakeService() *fakeService {
	return &fakeService{
		result: &domain.RetrievalResult{
			Emotion:      domain.EmotionJoy,
			Confidence:   0.91,
			Distribution: map[domain.EmotionTag]float64{"joy": 0.91, "love": 0.06, "sad": 0.03},
			Poems:        []domain.PoemRecord{{Text: "ألا ليت الشباب يعود يوماً", Emotion: domain.EmotionJoy}},
			PoemCount:    1,
		},
		info: in.ServiceInfo{
			Emotions:     domain.AllEmotions,
			ModelBackend: "kserve:arabert",
			TotalPoems:   42,
			Corpus:       domain.CorpusStats{Total: 42},
		},
	}
}

func newApp() *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: middleware.ErrorHandler(),
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
	})
	app.Use(middleware.RequestID())
	return app
}

func postJSON(t *testing.T, app *fiber.App, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest("POST", "/get-poetry", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	raw, _ := io.ReadAll(resp.Body)
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("decode %q: %v", raw, err)
	}
	return resp.StatusCode, m
}

func TestGetPoetry(t *testing.T) {
	svc := newFakeService()
	app := newApp()
	NewPoetryHandler(svc).Register(app)

	status, body := postJSON(t, app, `{"text":"  أنا سعيد جداً اليوم "}`)
	if status != 200 {
		t.Fatalf("status = %d body = %v", status, body)
	}
	if body["text"] != "أنا سعيد جداً اليوم" || body["emotion"] != "joy" || body["confidence"] != 0.91 {
		t.Errorf("body = %v", body)
	}
	if body["poetry_count"] != float64(1) {
		t.Errorf("poetry_count = %v", body["poetry_count"])
	}
	poems, _ := body["poetry"].([]any)
	if len(poems) != 1 {
		t.Fatalf("poetry = %v", body["poetry"])
	}
	probs, _ := body["all_probabilities"].(map[string]any)
	if len(probs) != 3 {
		t.Errorf("all_probabilities = %v", body["all_probabilities"])
	}
	if svc.gotCtx == nil {
		t.Error("service should receive the request context")
	}
}

func TestGetPoetryEmptyPartition(t *testing.T) {
	svc := newFakeService()
	svc.result.Emotion = domain.EmotionSad
	svc.result.Poems = []domain.PoemRecord{}
	svc.result.PoemCount = 0
	app := newApp()
	NewPoetryHandler(svc).Register(app)

	status, body := postJSON(t, app, `{"text":"حزين"}`)
	if status != 200 {
		t.Fatalf("status = %d", status)
	}
	poems, ok := body["poetry"].([]any)
	if !ok || len(poems) != 0 || body["poetry_count"] != float64(0) {
		t.Errorf("poetry = %v count = %v", body["poetry"], body["poetry_count"])
	}
}

func TestGetPoetryErrors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		svcErr     error
		wantStatus int
		wantCode   string
	}{
		{"blank text", `{"text":"   "}`, nil, 400, apperr.CodeInvalidInput},
		{"missing text", `{}`, nil, 400, apperr.CodeInvalidInput},
		{"empty body", ``, nil, 400, apperr.CodeInvalidInput},
		{"malformed json", `{"text":`, nil, 400, apperr.CodeBadRequest},
		{"non-string text", `{"text":42}`, nil, 400, apperr.CodeBadRequest},
		{"classification failure", `{"text":"hi"}`, apperr.ClassificationFailed(errors.New("model down")), 500, apperr.CodeClassificationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newFakeService()
			svc.err = tt.svcErr
			app := newApp()
			NewPoetryHandler(svc).Register(app)

			status, body := postJSON(t, app, tt.body)
			if status != tt.wantStatus {
				t.Errorf("status = %d, want %d", status, tt.wantStatus)
			}
			errBody, _ := body["error"].(map[string]any)
			if errBody["code"] != tt.wantCode {
				t.Errorf("error = %v, want code %s", body["error"], tt.wantCode)
			}
			if strings.Contains(errBody["message"].(string), "model down") {
				t.Error("internal cause leaked to client")
			}
		})
	}
}

func TestGetPoetryRunsExtraMiddleware(t *testing.T) {
	svc := newFakeService()
	app := newApp()
	NewPoetryHandler(svc).Register(app, func(c *fiber.Ctx) error {
		return fiber.ErrTooManyRequests
	})

	status, _ := postJSON(t, app, `{"text":"hi"}`)
	if status != 429 || svc.calls != 0 {
		t.Errorf("status = %d calls = %d", status, svc.calls)
	}
}

func getJSON(t *testing.T, app *fiber.App, path string) (int, map[string]any) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest("GET", path, nil))
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		t.Fatal(err)
	}
	return resp.StatusCode, m
}

func TestHomeAndHealth(t *testing.T) {
	latency := metrics.NewLatencyTracker(10)
	latency.Record(12 * time.Millisecond)
	app := newApp()
	NewHealthHandler(newFakeService(), HealthOptions{ClassifierLatency: latency}).Register(app)

	status, home := getJSON(t, app, "/")
	if status != 200 || home["status"] != "running" || home["total_poems"] != float64(42) {
		t.Errorf("home = %v", home)
	}
	if emotions, _ := home["emotions"].([]any); len(emotions) != 3 || emotions[0] != "joy" {
		t.Errorf("emotions = %v", home["emotions"])
	}

	status, health := getJSON(t, app, "/health")
	if status != 200 || health["status"] != "healthy" || health["model_backend"] != "kserve:arabert" {
		t.Errorf("health = %v", health)
	}
	lat, _ := health["classification_latency"].(map[string]any)
	if lat["count"] != float64(1) {
		t.Errorf("classification_latency = %v", health["classification_latency"])
	}
}

func TestReady(t *testing.T) {
	tests := []struct {
		name       string
		checkErr   error
		wantStatus int
		wantState  string
	}{
		{"all healthy", nil, 200, "ready"},
		{"model down", errors.New("connection refused"), 503, "not ready"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newApp()
			NewHealthHandler(newFakeService(), HealthOptions{
				Checks: []ReadinessCheck{{
					Name:  "model",
					Check: func(ctx context.Context) error { return tt.checkErr },
				}},
			}).Register(app)

			status, body := getJSON(t, app, "/ready")
			if status != tt.wantStatus || body["status"] != tt.wantState {
				t.Errorf("status = %d body = %v", status, body)
			}
			checks, _ := body["checks"].(map[string]any)
			if checks["corpus"] != "healthy" {
				t.Errorf("checks = %v", checks)
			}
		})
	}
}
