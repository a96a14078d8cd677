package model

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"poetry_server/core/port/out"
	"poetry_server/pkg/httputil"

	"github.com/goccy/go-json"
	openai "github.com/sashabaranov/go-openai"
)

// =============================================================================
// LLM score backend
// =============================================================================

const DefaultLLMModel = "gpt-4o-mini"

// near-zero temperature; go-openai drops an exact zero from the request
const scorerTemperature = math.SmallestNonzeroFloat32

const scorerSystemPrompt = `You rate the emotional tone of Arabic or English text.
Return a JSON object {"scores": {<label>: <number>, ...}} with exactly one entry per label listed by the user.
Each number is an unnormalized log-odds score; higher means the label fits better.
Return only the JSON object.`

// OpenAIScorerConfig configures an OpenAIScorer.
type OpenAIScorerConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Labels  []string
}

// OpenAIScorer asks a chat model for one raw score per label.
type OpenAIScorer struct {
	client *openai.Client
	model  string
	labels []string
}

var _ out.ScoreModel = (*OpenAIScorer)(nil)

// NewOpenAIScorer creates a scorer; labels are in class index order.
func NewOpenAIScorer(cfg OpenAIScorerConfig) (*OpenAIScorer, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api key is required")
	}
	if len(cfg.Labels) == 0 {
		return nil, errors.New("at least one label is required")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	clientCfg.HTTPClient = httputil.NewOptimizedClient(httputil.OpenAIClientConfig())

	model := cfg.Model
	if model == "" {
		model = DefaultLLMModel
	}

	return &OpenAIScorer{
		client: openai.NewClientWithConfig(clientCfg),
		model:  model,
		labels: append([]string(nil), cfg.Labels...),
	}, nil
}

// Name returns the backend identifier reported by /health.
func (s *OpenAIScorer) Name() string {
	return "openai:" + s.model
}

type scoreReply struct {
	Scores map[string]float64 `json:"scores"`
}

// Scores classifies the text that survived tokenization.
func (s *OpenAIScorer) Scores(ctx context.Context, enc *out.Encoding) ([]float64, error) {
	if enc == nil {
		return nil, errors.New("empty encoding")
	}

	prompt := fmt.Sprintf("Labels: %s\n\nText:\n%s", strings.Join(s.labels, ", "), enc.Text)

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       s.model,
		Temperature: scorerTemperature,
		MaxTokens:   200,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: scorerSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("llm score request: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("llm returned no choices")
	}

	var reply scoreReply
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &reply); err != nil {
		return nil, fmt.Errorf("parse llm scores: %w", err)
	}

	scores := make([]float64, len(s.labels))
	for i, label := range s.labels {
		v, ok := lookupScore(reply.Scores, label)
		if !ok {
			return nil, fmt.Errorf("llm reply missing score for %q", label)
		}
		scores[i] = v
	}
	return scores, nil
}

func lookupScore(scores map[string]float64, label string) (float64, bool) {
	if v, ok := scores[label]; ok {
		return v, true
	}
	for k, v := range scores {
		if strings.EqualFold(strings.TrimSpace(k), label) {
			return v, true
		}
	}
	return 0, false
}
