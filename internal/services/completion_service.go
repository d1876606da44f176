package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"time"

	"github.com/flowsyai/backend/internal/metrics"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const (
	defaultCompletionModel   = "gpt-3.5-turbo"
	defaultCompletionTimeout = 30 * time.Second
	defaultSystemPrompt      = "You are a helpful assistant."
	defaultTemperature       = 0.7
	defaultMaxTokens         = 1000

	analystSystemPrompt = "You are an expert text analyst. Always respond with valid JSON when requested."
)

var analysisPrompts = map[string]string{
	"sentiment": "Analyze the sentiment of the following text and return a JSON object with sentiment (positive/negative/neutral), confidence (0-1), and reasoning:\n\n",
	"entities":  "Extract named entities from the following text and return a JSON object with entities categorized by type (person, organization, location, etc.):\n\n",
	"summary":   "Provide a concise summary of the following text in 2-3 sentences:\n\n",
}

type CompletionConfig struct {
	APIKey         string
	OrganizationID string
	BaseURL        string
	Timeout        time.Duration
}

// TextGenerator is the part of the completion client agents depend on.
type TextGenerator interface {
	GenerateText(ctx context.Context, opts TextGenerationOptions) (*TextGenerationResult, error)
}

type TextGenerationOptions struct {
	Prompt       string
	Model        string
	Temperature  *float64
	MaxTokens    int
	SystemPrompt string
}

type CompletionUsage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

type TextGenerationResult struct {
	Text         string          `json:"text"`
	Usage        CompletionUsage `json:"usage"`
	Model        string          `json:"model"`
	FinishReason string          `json:"finishReason"`
}

// CompletionService is a single-attempt chat completion client. Every call
// gets its own deadline; nothing is retried.
type CompletionService struct {
	client  *openai.Client
	timeout time.Duration
	log     *zap.Logger
}

func NewCompletionService(config CompletionConfig, log *zap.Logger) (*CompletionService, error) {
	if config.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if log == nil {
		log = zap.NewNop()
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	if config.OrganizationID != "" {
		clientConfig.OrgID = config.OrganizationID
	}

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = defaultCompletionTimeout
	}

	return &CompletionService{
		client:  openai.NewClientWithConfig(clientConfig),
		timeout: timeout,
		log:     log.Named("completion"),
	}, nil
}

func (s *CompletionService) GenerateText(ctx context.Context, opts TextGenerationOptions) (*TextGenerationResult, error) {
	model := opts.Model
	if model == "" {
		model = defaultCompletionModel
	}
	systemPrompt := opts.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = defaultSystemPrompt
	}
	temperature := float32(defaultTemperature)
	if opts.Temperature != nil {
		temperature = float32(*opts.Temperature)
	}
	// go-openai omits a zero temperature and the API then applies its own default.
	if temperature == 0 {
		temperature = math.SmallestNonzeroFloat32
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: opts.Prompt},
		},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		err = translateCompletionError(ctx, err)
		metrics.CompletionRequestsTotal.WithLabelValues(completionOutcome(err)).Inc()
		s.log.Error("OpenAI text generation failed",
			zap.Error(err),
			zap.String("model", model),
			zap.String("prompt", truncate(opts.Prompt, 100)),
		)
		return nil, err
	}

	if len(resp.Choices) == 0 {
		metrics.CompletionRequestsTotal.WithLabelValues("empty").Inc()
		return nil, ErrNoChoices
	}

	metrics.CompletionRequestsTotal.WithLabelValues("success").Inc()
	metrics.CompletionTokensTotal.WithLabelValues("prompt").Add(float64(resp.Usage.PromptTokens))
	metrics.CompletionTokensTotal.WithLabelValues("completion").Add(float64(resp.Usage.CompletionTokens))
	s.log.Debug("OpenAI text generation completed",
		zap.String("model", resp.Model),
		zap.Duration("duration", time.Since(start)),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
	)

	choice := resp.Choices[0]
	return &TextGenerationResult{
		Text: choice.Message.Content,
		Usage: CompletionUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		Model:        resp.Model,
		FinishReason: string(choice.FinishReason),
	}, nil
}

// AnalyzeText runs a sentiment, entities or summary analysis. Responses
// that are not valid JSON come back wrapped as {analysis, type}.
func (s *CompletionService) AnalyzeText(ctx context.Context, text, kind string) (map[string]any, error) {
	if kind == "" {
		kind = "sentiment"
	}
	prefix, ok := analysisPrompts[kind]
	if !ok {
		return nil, fmt.Errorf("unsupported analysis type %q", kind)
	}

	temperature := 0.3
	result, err := s.GenerateText(ctx, TextGenerationOptions{
		Prompt:       prefix + text,
		SystemPrompt: analystSystemPrompt,
		Temperature:  &temperature,
		MaxTokens:    500,
	})
	if err != nil {
		return nil, err
	}

	if kind == "summary" {
		return map[string]any{"summary": result.Text}, nil
	}

	var parsed map[string]any
	if err := json.Unmarshal([]byte(result.Text), &parsed); err != nil {
		return map[string]any{"analysis": result.Text, "type": kind}, nil
	}
	return parsed, nil
}

// HealthCheck reports whether a minimal completion succeeds.
func (s *CompletionService) HealthCheck(ctx context.Context) bool {
	temperature := 0.0
	_, err := s.GenerateText(ctx, TextGenerationOptions{
		Prompt:      "Hello",
		MaxTokens:   10,
		Temperature: &temperature,
	})
	return err == nil
}

func translateCompletionError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return ErrCompletionTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrCompletionTimeout
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		message := apiErr.Message
		if message == "" {
			message = "Unknown error"
		}
		return &UpstreamAPIError{StatusCode: apiErr.HTTPStatusCode, Message: message}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &UpstreamAPIError{StatusCode: reqErr.HTTPStatusCode, Message: "Unknown error"}
	}

	return err
}

func completionOutcome(err error) string {
	var upstream *UpstreamAPIError
	switch {
	case errors.Is(err, ErrCompletionTimeout):
		return "timeout"
	case errors.As(err, &upstream):
		return "upstream_error"
	default:
		return "error"
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
