package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"slices"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/flowsyai/backend/internal/models"
	"go.uber.org/zap"
)

// AgentHandler runs one agent type. It returns the execution output or an
// error that marks the execution failed.
type AgentHandler interface {
	Handle(ctx context.Context, agent *models.AIAgent, input map[string]any) (map[string]any, error)
}

type AgentHandlerFunc func(ctx context.Context, agent *models.AIAgent, input map[string]any) (map[string]any, error)

func (f AgentHandlerFunc) Handle(ctx context.Context, agent *models.AIAgent, input map[string]any) (map[string]any, error) {
	return f(ctx, agent, input)
}

type HandlerRegistry struct {
	mu       sync.RWMutex
	handlers map[models.AgentType]AgentHandler
}

func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{handlers: make(map[models.AgentType]AgentHandler)}
}

func (r *HandlerRegistry) Register(agentType models.AgentType, handler AgentHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[agentType] = handler
}

func (r *HandlerRegistry) Lookup(agentType models.AgentType) (AgentHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[agentType]
	return h, ok
}

func (r *HandlerRegistry) Dispatch(ctx context.Context, agent *models.AIAgent, input map[string]any) (map[string]any, error) {
	h, ok := r.Lookup(agent.Type)
	if !ok {
		return nil, fmt.Errorf("unsupported agent type: %s", agent.Type)
	}
	return h.Handle(ctx, agent, input)
}

type HandlerDeps struct {
	// TextGenerator may be nil; text agents then answer with a fallback.
	TextGenerator TextGenerator
	HTTPClient    *http.Client
	Logger        *zap.Logger
}

// NewDefaultRegistry registers a handler for every built-in agent type.
func NewDefaultRegistry(deps HandlerDeps) *HandlerRegistry {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	client := deps.HTTPClient
	if client == nil {
		client = NewAPIConnectorClient(10 * time.Second)
	}

	r := NewHandlerRegistry()
	r.Register(models.AgentTextGenerator, &TextGeneratorHandler{generator: deps.TextGenerator, log: log})
	r.Register(models.AgentDataAnalyzer, AgentHandlerFunc(analyzeData))
	r.Register(models.AgentWorkflowExecutor, &WorkflowHandler{registry: r})
	r.Register(models.AgentAPIConnector, &APIConnectorHandler{client: client})
	r.Register(models.AgentImageProcessor, AgentHandlerFunc(processImages))
	return r
}

// TextGeneratorHandler calls the completion client and degrades to a canned
// answer when the client is missing or fails.
type TextGeneratorHandler struct {
	generator TextGenerator
	log       *zap.Logger
}

func (h *TextGeneratorHandler) Handle(ctx context.Context, agent *models.AIAgent, input map[string]any) (map[string]any, error) {
	start := time.Now()
	cfg := agent.Configuration

	prompt := firstString(input, "prompt", "text")
	if prompt == "" {
		prompt = "Generate helpful content"
	}
	systemPrompt := cfg.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = "You are a helpful AI assistant."
	}
	model := cfg.Model
	if model == "" {
		model = defaultCompletionModel
	}

	if h.generator != nil {
		result, err := h.generator.GenerateText(ctx, TextGenerationOptions{
			Prompt:       prompt,
			Model:        model,
			Temperature:  cfg.Temperature,
			MaxTokens:    cfg.MaxTokens,
			SystemPrompt: systemPrompt,
		})
		if err == nil {
			return map[string]any{
				"generated_text":  result.Text,
				"word_count":      len(strings.Fields(result.Text)),
				"processing_time": processingTime(start),
				"model_used":      result.Model,
				"tokens_used":     result.Usage.TotalTokens,
				"finish_reason":   result.FinishReason,
			}, nil
		}
		h.log.Warn("Completion client unavailable, using fallback response",
			zap.String("agent_id", agent.ID), zap.Error(err))
	}

	shown := firstString(input, "prompt", "text")
	if shown == "" {
		shown = "No input provided"
	}
	text := fmt.Sprintf("AI-generated response from %s: This is a generated text based on your input: %q. "+
		"This is a fallback response when OpenAI is not configured.", agent.Name, shown)

	return map[string]any{
		"generated_text":  text,
		"word_count":      len(strings.Fields(text)),
		"processing_time": processingTime(start),
		"model_used":      model,
		"tokens_used":     0,
		"finish_reason":   "mock",
	}, nil
}

type Statistics struct {
	Count  int     `json:"count"`
	Sum    float64 `json:"sum"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	StdDev float64 `json:"std_dev"`
}

func describe(values []float64) Statistics {
	sorted := slices.Clone(values)
	sort.Float64s(sorted)

	s := Statistics{Count: len(sorted), Min: sorted[0], Max: sorted[len(sorted)-1]}
	for _, v := range sorted {
		s.Sum += v
	}
	s.Mean = s.Sum / float64(s.Count)

	mid := s.Count / 2
	if s.Count%2 == 0 {
		s.Median = (sorted[mid-1] + sorted[mid]) / 2
	} else {
		s.Median = sorted[mid]
	}

	var sq float64
	for _, v := range sorted {
		sq += (v - s.Mean) * (v - s.Mean)
	}
	s.StdDev = math.Sqrt(sq / float64(s.Count))
	return s
}

// analyzeData computes descriptive statistics over input.data, which is
// either a list of numbers or a list of records with numeric fields.
func analyzeData(_ context.Context, agent *models.AIAgent, input map[string]any) (map[string]any, error) {
	rows, ok := input["data"].([]any)
	if !ok || len(rows) == 0 {
		return nil, errors.New("data_analyzer requires a non-empty data array")
	}

	var values []float64
	fields := map[string][]float64{}
	for _, row := range rows {
		if v, ok := toFloat(row); ok {
			values = append(values, v)
			continue
		}
		record, ok := row.(map[string]any)
		if !ok {
			continue
		}
		for name, raw := range record {
			if v, ok := toFloat(raw); ok {
				fields[name] = append(fields[name], v)
			}
		}
	}

	if len(values) == 0 && len(fields) == 0 {
		return nil, errors.New("data_analyzer found no numeric values in data")
	}

	output := map[string]any{
		"analysis_summary": fmt.Sprintf("Data analysis completed for %s. Processed %d data points.", agent.Name, len(rows)),
		"data_points":      len(rows),
	}
	if len(values) > 0 {
		output["statistics"] = describe(values)
	}
	if len(fields) > 0 {
		perField := make(map[string]Statistics, len(fields))
		for name, vs := range fields {
			perField[name] = describe(vs)
		}
		output["fields"] = perField
	}
	return output, nil
}

// WorkflowHandler runs input.steps in order through the registry and stops
// at the first failing step.
type WorkflowHandler struct {
	registry *HandlerRegistry
}

func (h *WorkflowHandler) Handle(ctx context.Context, agent *models.AIAgent, input map[string]any) (map[string]any, error) {
	steps, ok := input["steps"].([]any)
	if !ok || len(steps) == 0 {
		return nil, errors.New("workflow_executor requires a non-empty steps array")
	}

	results := make([]map[string]any, 0, len(steps))
	for i, raw := range steps {
		step, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("workflow step %d is not an object", i+1)
		}

		name, _ := step["name"].(string)
		if name == "" {
			name = fmt.Sprintf("step-%d", i+1)
		}
		stepType, _ := step["agent_type"].(string)
		if models.AgentType(stepType) == models.AgentWorkflowExecutor {
			return nil, fmt.Errorf("workflow step %q: nested workflows are not supported", name)
		}
		stepInput, _ := step["input"].(map[string]any)
		if stepInput == nil {
			stepInput = map[string]any{}
		}

		stepAgent := *agent
		stepAgent.Name = agent.Name + "/" + name
		stepAgent.Type = models.AgentType(stepType)

		output, err := h.registry.Dispatch(ctx, &stepAgent, stepInput)
		if err != nil {
			return nil, fmt.Errorf("workflow step %q failed: %w", name, err)
		}
		results = append(results, map[string]any{
			"name":       name,
			"agent_type": stepType,
			"status":     string(models.ExecutionCompleted),
			"output":     output,
		})
	}

	return map[string]any{
		"workflow_status": string(models.ExecutionCompleted),
		"steps_completed": len(results),
		"total_steps":     len(steps),
		"results":         results,
	}, nil
}

// APIConnectorHandler issues GET requests to the agent's configured
// endpoints. input.endpoints may narrow the set but never extend it.
type APIConnectorHandler struct {
	client *http.Client
}

func (h *APIConnectorHandler) Handle(ctx context.Context, agent *models.AIAgent, input map[string]any) (map[string]any, error) {
	configured := agent.Configuration.APIEndpoints
	if len(configured) == 0 {
		return nil, errors.New("api_connector has no configured api_endpoints")
	}

	endpoints := configured
	if requested := stringList(input["endpoints"]); len(requested) > 0 {
		for _, e := range requested {
			if !slices.Contains(configured, e) {
				return nil, fmt.Errorf("endpoint %s is not configured for this agent", e)
			}
		}
		endpoints = requested
	}

	responses := make([]map[string]any, 0, len(endpoints))
	succeeded := 0
	for _, endpoint := range endpoints {
		call := h.call(ctx, endpoint)
		if status, ok := call["status_code"].(int); ok && status < 400 {
			succeeded++
		}
		responses = append(responses, call)
	}

	return map[string]any{
		"api_calls_made":   len(endpoints),
		"successful_calls": succeeded,
		"failed_calls":     len(endpoints) - succeeded,
		"responses":        responses,
	}, nil
}

func (h *APIConnectorHandler) call(ctx context.Context, endpoint string) map[string]any {
	start := time.Now()
	result := map[string]any{"endpoint": endpoint}

	if u, err := url.Parse(endpoint); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		result["error"] = "endpoint must be an http or https URL"
		return result
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		result["error"] = err.Error()
		return result
	}

	resp, err := h.client.Do(req)
	if err != nil {
		result["error"] = err.Error()
		result["duration_ms"] = time.Since(start).Milliseconds()
		return result
	}
	defer resp.Body.Close()

	n, _ := io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	result["status_code"] = resp.StatusCode
	result["content_type"] = resp.Header.Get("Content-Type")
	result["bytes"] = n
	result["duration_ms"] = time.Since(start).Milliseconds()
	return result
}

var errBlockedAddress = errors.New("destination address is not allowed")

// Special-purpose IPv4 ranges that netip does not classify as private.
var blockedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("192.0.0.0/24"),
	netip.MustParsePrefix("198.18.0.0/15"),
}

// NewAPIConnectorClient returns the client api_connector agents call out
// with. It only dials public unicast addresses, checked after DNS
// resolution, and ignores proxy environment variables.
func NewAPIConnectorClient(timeout time.Duration) *http.Client {
	dialer := &net.Dialer{
		Timeout: 5 * time.Second,
		Control: dialPublicOnly,
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:               nil,
			DialContext:         dialer.DialContext,
			TLSHandshakeTimeout: 5 * time.Second,
			MaxIdleConns:        20,
			IdleConnTimeout:     30 * time.Second,
		},
	}
}

func dialPublicOnly(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return err
	}
	if !isPublicAddr(addr) {
		return fmt.Errorf("%w: %s", errBlockedAddress, host)
	}
	return nil
}

func isPublicAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	if !addr.IsGlobalUnicast() || addr.IsPrivate() {
		return false
	}
	for _, p := range blockedPrefixes {
		if p.Contains(addr) {
			return false
		}
	}
	return true
}

// processImages decodes base64 images from input.images (or input.image)
// and reports their format and dimensions.
func processImages(_ context.Context, _ *models.AIAgent, input map[string]any) (map[string]any, error) {
	encoded := stringList(input["images"])
	if single, ok := input["image"].(string); ok && single != "" {
		encoded = append(encoded, single)
	}
	if len(encoded) == 0 {
		return nil, errors.New("image_processor requires base64 images")
	}

	images := make([]map[string]any, 0, len(encoded))
	for i, data := range encoded {
		if comma := strings.IndexByte(data, ','); strings.HasPrefix(data, "data:") && comma > 0 {
			data = data[comma+1:]
		}
		raw, err := base64.StdEncoding.DecodeString(data)
		if err != nil {
			return nil, fmt.Errorf("image %d is not valid base64: %w", i+1, err)
		}
		cfg, format, err := image.DecodeConfig(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("image %d could not be decoded: %w", i+1, err)
		}
		images = append(images, map[string]any{
			"format":     format,
			"width":      cfg.Width,
			"height":     cfg.Height,
			"size_bytes": len(raw),
		})
	}

	return map[string]any{
		"images_processed": len(images),
		"images":           images,
	}, nil
}

func firstString(input map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := input[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func stringList(v any) []string {
	items, ok := v.([]any)
	if !ok {
		if strs, ok := v.([]string); ok {
			return strs
		}
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func processingTime(start time.Time) string {
	return fmt.Sprintf("%.1fs", time.Since(start).Seconds())
}
