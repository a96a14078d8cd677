package model

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"poetry_server/core/port/out"

	"github.com/goccy/go-json"
)

func testEncoding() *out.Encoding {
	return &out.Encoding{
		IDs:           []int64{2, 12, 13, 3, 0},
		AttentionMask: []int64{1, 1, 1, 1, 0},
		TypeIDs:       []int64{0, 0, 0, 0, 0},
	}
}

func newTestInferenceClient(t *testing.T, srv *httptest.Server) *InferenceClient {
	t.Helper()
	client, err := NewInferenceClient(InferenceConfig{
		BaseURL:    srv.URL + "/",
		ModelName:  "arabert-emotion",
		NumClasses: 3,
		HTTPClient: srv.Client(),
	})
	if err != nil {
		t.Fatalf("NewInferenceClient: %v", err)
	}
	return client
}

func TestInferenceClientScores(t *testing.T) {
	var got inferRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v2/models/arabert-emotion/infer" {
			http.Error(w, "unexpected route", http.StatusNotFound)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model_name":"arabert-emotion","outputs":[
			{"name":"hidden","shape":[1,1],"datatype":"FP32","data":[9]},
			{"name":"logits","shape":[1,3],"datatype":"FP32","data":[2.5,-0.5,0.25]}]}`))
	}))
	defer srv.Close()

	client := newTestInferenceClient(t, srv)
	scores, err := client.Scores(context.Background(), testEncoding())
	if err != nil {
		t.Fatalf("Scores: %v", err)
	}

	want := []float64{2.5, -0.5, 0.25}
	if len(scores) != len(want) {
		t.Fatalf("scores = %v", scores)
	}
	for i := range want {
		if scores[i] != want[i] {
			t.Errorf("scores[%d] = %v, want %v", i, scores[i], want[i])
		}
	}

	if len(got.Inputs) != 3 {
		t.Fatalf("inputs = %d, want 3", len(got.Inputs))
	}
	names := []string{"input_ids", "attention_mask", "token_type_ids"}
	for i, in := range got.Inputs {
		if in.Name != names[i] || in.Datatype != "INT64" {
			t.Errorf("input %d = %s/%s", i, in.Name, in.Datatype)
		}
		if len(in.Shape) != 2 || in.Shape[0] != 1 || in.Shape[1] != 5 {
			t.Errorf("input %s shape = %v", in.Name, in.Shape)
		}
	}
	if got.Inputs[0].Data[1] != 12 || got.Inputs[1].Data[4] != 0 {
		t.Errorf("unexpected tensor data: %v %v", got.Inputs[0].Data, got.Inputs[1].Data)
	}
	if client.Name() != "kserve:arabert-emotion" {
		t.Errorf("Name() = %s", client.Name())
	}
}

func TestInferenceClientScoresErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{"server error", http.StatusInternalServerError, `boom`, "returned 500"},
		{"bad request", http.StatusBadRequest, `{"error":"shape mismatch"}`, "returned 400"},
		{"missing output", http.StatusOK, `{"outputs":[{"name":"other","data":[1,2,3]}]}`, `no output "logits"`},
		{"wrong width", http.StatusOK, `{"outputs":[{"name":"logits","data":[1,2]}]}`, "has 2 values"},
		{"error field", http.StatusOK, `{"error":"model not loaded"}`, "model not loaded"},
		{"malformed", http.StatusOK, `{"outputs":`, "decode infer response"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := newTestInferenceClient(t, srv).Scores(context.Background(), testEncoding())
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestInferenceClientRejectsBadEncoding(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	client := newTestInferenceClient(t, srv)

	if _, err := client.Scores(context.Background(), nil); err == nil {
		t.Error("expected error for nil encoding")
	}
	enc := testEncoding()
	enc.TypeIDs = enc.TypeIDs[:2]
	if _, err := client.Scores(context.Background(), enc); err == nil {
		t.Error("expected error for mismatched tensors")
	}
}

func TestInferenceClientBreakerIgnoresClientFaults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad input", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	client := newTestInferenceClient(t, srv)
	for i := 0; i < 12; i++ {
		_, _ = client.Scores(context.Background(), testEncoding())
	}
	if client.BreakerOpen() {
		t.Error("breaker opened on client errors")
	}
}

func TestInferenceClientBreakerTrips(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := newTestInferenceClient(t, srv)
	for i := 0; i < 7; i++ {
		_, _ = client.Scores(context.Background(), testEncoding())
	}
	if !client.BreakerOpen() {
		t.Fatal("breaker should be open after repeated server errors")
	}
	_, err := client.Scores(context.Background(), testEncoding())
	if err == nil || !strings.Contains(err.Error(), "inference unavailable") {
		t.Errorf("err = %v, want inference unavailable", err)
	}
}

func TestInferenceClientReady(t *testing.T) {
	var ready atomic.Bool
	ready.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/models/arabert-emotion/ready" {
			http.NotFound(w, r)
			return
		}
		if !ready.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := newTestInferenceClient(t, srv)
	if err := client.Ready(context.Background()); err != nil {
		t.Errorf("Ready() = %v", err)
	}
	ready.Store(false)
	if err := client.Ready(context.Background()); err == nil {
		t.Error("Ready() should fail when model is not loaded")
	}
}

func TestNewInferenceClientValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  InferenceConfig
	}{
		{"no url", InferenceConfig{ModelName: "m", NumClasses: 3}},
		{"relative url", InferenceConfig{BaseURL: "not a url", ModelName: "m", NumClasses: 3}},
		{"no model", InferenceConfig{BaseURL: "http://localhost:8000", NumClasses: 3}},
		{"no classes", InferenceConfig{BaseURL: "http://localhost:8000", ModelName: "m"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewInferenceClient(tt.cfg); err == nil {
				t.Error("expected error")
			}
		})
	}
}
