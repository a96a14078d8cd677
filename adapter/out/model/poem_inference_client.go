package model

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"poetry_server/core/port/out"
	"poetry_server/pkg/httputil"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// =============================================================================
// KServe v2 / Triton inference client
// =============================================================================

const (
	defaultLogitsOutput = "logits"
	maxErrorBody        = 4 << 10
)

// InferenceConfig configures the remote score model.
type InferenceConfig struct {
	BaseURL    string
	ModelName  string
	OutputName string
	NumClasses int
	Timeout    time.Duration
	HTTPClient *http.Client
	Log        *zerolog.Logger
}

// InferenceClient scores encodings against a model served over the open inference protocol.
type InferenceClient struct {
	baseURL    string
	modelName  string
	outputName string
	numClasses int
	client     *http.Client
	cb         *gobreaker.CircuitBreaker
}

var _ out.ScoreModel = (*InferenceClient)(nil)
var _ out.ModelHealthChecker = (*InferenceClient)(nil)

// statusError is a non-2xx reply from the inference server.
type statusError struct {
	Status int
	Body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("inference server returned %d: %s", e.Status, e.Body)
}

// clientFault reports errors caused by the request itself; they do not trip the breaker.
func clientFault(err error) bool {
	var se *statusError
	return errors.As(err, &se) && se.Status >= 400 && se.Status < 500 && se.Status != http.StatusTooManyRequests
}

// NewInferenceClient creates a client for cfg.ModelName at cfg.BaseURL.
func NewInferenceClient(cfg InferenceConfig) (*InferenceClient, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("inference url is required")
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("invalid inference url: %w", err)
	}
	if cfg.ModelName == "" {
		return nil, errors.New("inference model name is required")
	}
	if cfg.NumClasses <= 0 {
		return nil, errors.New("number of classes must be positive")
	}

	outputName := cfg.OutputName
	if outputName == "" {
		outputName = defaultLogitsOutput
	}
	client := cfg.HTTPClient
	if client == nil {
		client = httputil.NewOptimizedClient(httputil.InferenceClientConfig(cfg.Timeout))
	}
	log := cfg.Log
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}

	cbSettings := gobreaker.Settings{
		Name:        "inference-" + cfg.ModelName,
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || clientFault(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("inference circuit breaker state changed")
		},
	}

	return &InferenceClient{
		baseURL:    base,
		modelName:  cfg.ModelName,
		outputName: outputName,
		numClasses: cfg.NumClasses,
		client:     client,
		cb:         gobreaker.NewCircuitBreaker(cbSettings),
	}, nil
}

// Name returns the backend identifier reported by /health.
func (c *InferenceClient) Name() string {
	return "kserve:" + c.modelName
}

type inferTensor struct {
	Name     string  `json:"name"`
	Shape    []int   `json:"shape"`
	Datatype string  `json:"datatype"`
	Data     []int64 `json:"data"`
}

type inferOutputRequest struct {
	Name string `json:"name"`
}

type inferRequest struct {
	Inputs  []inferTensor        `json:"inputs"`
	Outputs []inferOutputRequest `json:"outputs"`
}

type inferOutput struct {
	Name     string    `json:"name"`
	Shape    []int     `json:"shape"`
	Datatype string    `json:"datatype"`
	Data     []float64 `json:"data"`
}

type inferResponse struct {
	ModelName string        `json:"model_name"`
	Outputs   []inferOutput `json:"outputs"`
	Error     string        `json:"error,omitempty"`
}

// Scores runs one forward pass and returns the logits of the single batch row.
func (c *InferenceClient) Scores(ctx context.Context, enc *out.Encoding) ([]float64, error) {
	if enc == nil || len(enc.IDs) == 0 {
		return nil, errors.New("empty encoding")
	}
	if len(enc.AttentionMask) != len(enc.IDs) || len(enc.TypeIDs) != len(enc.IDs) {
		return nil, errors.New("encoding tensors differ in length")
	}

	shape := []int{1, len(enc.IDs)}
	payload := inferRequest{
		Inputs: []inferTensor{
			{Name: "input_ids", Shape: shape, Datatype: "INT64", Data: enc.IDs},
			{Name: "attention_mask", Shape: shape, Datatype: "INT64", Data: enc.AttentionMask},
			{Name: "token_type_ids", Shape: shape, Datatype: "INT64", Data: enc.TypeIDs},
		},
		Outputs: []inferOutputRequest{{Name: c.outputName}},
	}

	result, err := c.cb.Execute(func() (interface{}, error) {
		return c.infer(ctx, payload)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("inference unavailable: %w", err)
		}
		return nil, err
	}
	return c.extractLogits(result.(*inferResponse))
}

func (c *InferenceClient) infer(ctx context.Context, payload inferRequest) (*inferResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode infer request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v2/models/%s/infer", c.baseURL, url.PathEscape(c.modelName))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("infer request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &statusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	var decoded inferResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode infer response: %w", err)
	}
	if decoded.Error != "" {
		return nil, fmt.Errorf("inference server error: %s", decoded.Error)
	}
	return &decoded, nil
}

func (c *InferenceClient) extractLogits(resp *inferResponse) ([]float64, error) {
	for _, o := range resp.Outputs {
		if o.Name != c.outputName {
			continue
		}
		if len(o.Data) != c.numClasses {
			return nil, fmt.Errorf("output %q has %d values, want %d", o.Name, len(o.Data), c.numClasses)
		}
		scores := make([]float64, len(o.Data))
		for i, v := range o.Data {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("output %q has non-finite value at %d", o.Name, i)
			}
			scores[i] = v
		}
		return scores, nil
	}
	return nil, fmt.Errorf("response has no output %q", c.outputName)
}

// Ready reports whether the model is loaded and serving.
func (c *InferenceClient) Ready(ctx context.Context) error {
	endpoint := fmt.Sprintf("%s/v2/models/%s/ready", c.baseURL, url.PathEscape(c.modelName))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("readiness probe: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("model %s not ready: status %d", c.modelName, resp.StatusCode)
	}
	return nil
}

// BreakerOpen reports whether the circuit breaker is rejecting calls.
func (c *InferenceClient) BreakerOpen() bool {
	return c.cb.State() == gobreaker.StateOpen
}
