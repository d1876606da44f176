package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"sync/atomic"
	"testing"
	"time"

	"github.com/flowsyai/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, width, height int) string {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestHandlerRegistry_Dispatch(t *testing.T) {
	ctx := context.Background()
	registry := NewHandlerRegistry()

	_, err := registry.Dispatch(ctx, &models.AIAgent{Type: "translator"}, nil)
	assert.EqualError(t, err, "unsupported agent type: translator")

	registry.Register("translator", AgentHandlerFunc(func(_ context.Context, agent *models.AIAgent, input map[string]any) (map[string]any, error) {
		return map[string]any{"echo": input["text"]}, nil
	}))
	output, err := registry.Dispatch(ctx, &models.AIAgent{Type: "translator"}, map[string]any{"text": "hola"})
	require.NoError(t, err)
	assert.Equal(t, "hola", output["echo"])
}

func TestTextGeneratorHandler_Fallback(t *testing.T) {
	registry := NewDefaultRegistry(HandlerDeps{})
	agent := &models.AIAgent{Name: "Writer", Type: models.AgentTextGenerator}

	output, err := registry.Dispatch(context.Background(), agent, map[string]any{})
	require.NoError(t, err)

	text := output["generated_text"].(string)
	assert.Contains(t, text, "AI-generated response from Writer")
	assert.Contains(t, text, `"No input provided"`)
	assert.Equal(t, "gpt-3.5-turbo", output["model_used"])
	assert.Equal(t, 0, output["tokens_used"])
}

func TestTextGeneratorHandler_UsesAgentConfiguration(t *testing.T) {
	zero := 0.0
	generator := new(MockTextGenerator)
	generator.On("GenerateText", context.Background(), TextGenerationOptions{
		Prompt:       "Generate helpful content",
		Model:        "gpt-4",
		Temperature:  &zero,
		MaxTokens:    200,
		SystemPrompt: "Be brief.",
	}).Return(&TextGenerationResult{Text: "ok", Model: "gpt-4"}, nil).Once()

	registry := NewDefaultRegistry(HandlerDeps{TextGenerator: generator})
	agent := &models.AIAgent{
		Name: "Writer",
		Type: models.AgentTextGenerator,
		Configuration: models.AgentConfiguration{
			Model:        "gpt-4",
			Temperature:  &zero,
			MaxTokens:    200,
			SystemPrompt: "Be brief.",
		},
	}

	output, err := registry.Dispatch(context.Background(), agent, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", output["generated_text"])
	generator.AssertExpectations(t)
}

func TestAnalyzeData(t *testing.T) {
	ctx := context.Background()
	agent := &models.AIAgent{Name: "Stats", Type: models.AgentDataAnalyzer}

	t.Run("numbers", func(t *testing.T) {
		output, err := analyzeData(ctx, agent, map[string]any{"data": []any{4.0, 1.0, 3.0, 2.0}})
		require.NoError(t, err)

		stats := output["statistics"].(Statistics)
		assert.Equal(t, 4, stats.Count)
		assert.Equal(t, 10.0, stats.Sum)
		assert.Equal(t, 2.5, stats.Mean)
		assert.Equal(t, 2.5, stats.Median)
		assert.Equal(t, 1.0, stats.Min)
		assert.Equal(t, 4.0, stats.Max)
		assert.InDelta(t, 1.118, stats.StdDev, 0.001)
		assert.Equal(t, 4, output["data_points"])
		assert.Equal(t, "Data analysis completed for Stats. Processed 4 data points.", output["analysis_summary"])
	})

	t.Run("records", func(t *testing.T) {
		output, err := analyzeData(ctx, agent, map[string]any{"data": []any{
			map[string]any{"price": 10.0, "name": "a"},
			map[string]any{"price": 20.0, "qty": 3.0},
			map[string]any{"price": 30.0},
		}})
		require.NoError(t, err)

		fields := output["fields"].(map[string]Statistics)
		assert.Equal(t, 20.0, fields["price"].Median)
		assert.Equal(t, 1, fields["qty"].Count)
		assert.NotContains(t, fields, "name")
		assert.NotContains(t, output, "statistics")
	})

	t.Run("nothing numeric", func(t *testing.T) {
		_, err := analyzeData(ctx, agent, map[string]any{"data": []any{"a", "b"}})
		assert.Error(t, err)
	})

	t.Run("missing data", func(t *testing.T) {
		_, err := analyzeData(ctx, agent, map[string]any{})
		assert.Error(t, err)
	})
}

func TestWorkflowHandler(t *testing.T) {
	ctx := context.Background()
	registry := NewDefaultRegistry(HandlerDeps{})
	agent := &models.AIAgent{Name: "Pipeline", Type: models.AgentWorkflowExecutor}

	t.Run("runs steps in order", func(t *testing.T) {
		output, err := registry.Dispatch(ctx, agent, map[string]any{"steps": []any{
			map[string]any{"name": "draft", "agent_type": "text_generator", "input": map[string]any{"prompt": "hi"}},
			map[string]any{"agent_type": "data_analyzer", "input": map[string]any{"data": []any{1.0, 2.0}}},
		}})
		require.NoError(t, err)

		assert.Equal(t, "completed", output["workflow_status"])
		assert.Equal(t, 2, output["steps_completed"])
		results := output["results"].([]map[string]any)
		require.Len(t, results, 2)
		assert.Equal(t, "draft", results[0]["name"])
		assert.Equal(t, "step-2", results[1]["name"])
		draft := results[0]["output"].(map[string]any)
		assert.Contains(t, draft["generated_text"], "Pipeline/draft")
	})

	t.Run("stops at first failure", func(t *testing.T) {
		_, err := registry.Dispatch(ctx, agent, map[string]any{"steps": []any{
			map[string]any{"name": "bad", "agent_type": "data_analyzer"},
			map[string]any{"name": "never", "agent_type": "text_generator"},
		}})
		assert.ErrorContains(t, err, `workflow step "bad" failed`)
	})

	t.Run("nested workflows rejected", func(t *testing.T) {
		_, err := registry.Dispatch(ctx, agent, map[string]any{"steps": []any{
			map[string]any{"name": "loop", "agent_type": "workflow_executor"},
		}})
		assert.ErrorContains(t, err, "nested workflows")
	})

	t.Run("no steps", func(t *testing.T) {
		_, err := registry.Dispatch(ctx, agent, map[string]any{})
		assert.Error(t, err)
	})
}

func TestAPIConnectorHandler(t *testing.T) {
	ctx := context.Background()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"status":"up"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	registry := NewDefaultRegistry(HandlerDeps{HTTPClient: server.Client()})
	agent := &models.AIAgent{
		Name: "Status",
		Type: models.AgentAPIConnector,
		Configuration: models.AgentConfiguration{
			APIEndpoints: []string{server.URL + "/ok", server.URL + "/missing"},
		},
	}

	t.Run("calls every configured endpoint", func(t *testing.T) {
		output, err := registry.Dispatch(ctx, agent, nil)
		require.NoError(t, err)

		assert.Equal(t, 2, output["api_calls_made"])
		assert.Equal(t, 1, output["successful_calls"])
		assert.Equal(t, 1, output["failed_calls"])
		responses := output["responses"].([]map[string]any)
		assert.Equal(t, http.StatusOK, responses[0]["status_code"])
		assert.Equal(t, "application/json", responses[0]["content_type"])
		assert.Equal(t, int64(15), responses[0]["bytes"])
		assert.Equal(t, http.StatusNotFound, responses[1]["status_code"])
	})

	t.Run("narrowed to requested endpoints", func(t *testing.T) {
		output, err := registry.Dispatch(ctx, agent, map[string]any{"endpoints": []any{server.URL + "/ok"}})
		require.NoError(t, err)
		assert.Equal(t, 1, output["api_calls_made"])
	})

	t.Run("unconfigured endpoint rejected", func(t *testing.T) {
		_, err := registry.Dispatch(ctx, agent, map[string]any{"endpoints": []any{"http://169.254.169.254/"}})
		assert.ErrorContains(t, err, "not configured")
	})

	t.Run("no endpoints configured", func(t *testing.T) {
		_, err := registry.Dispatch(ctx, &models.AIAgent{Type: models.AgentAPIConnector}, nil)
		assert.Error(t, err)
	})
}

func TestAPIConnectorHandler_BlocksInternalAddresses(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(`{"instance-id":"i-123"}`))
	}))
	defer server.Close()

	registry := NewDefaultRegistry(HandlerDeps{HTTPClient: NewAPIConnectorClient(time.Second)})
	agent := &models.AIAgent{
		Name: "Metadata",
		Type: models.AgentAPIConnector,
		Configuration: models.AgentConfiguration{
			APIEndpoints: []string{server.URL + "/latest/meta-data", "file:///etc/passwd"},
		},
	}

	output, err := registry.Dispatch(context.Background(), agent, nil)
	require.NoError(t, err)

	assert.Equal(t, 0, output["successful_calls"])
	assert.Equal(t, 2, output["failed_calls"])
	responses := output["responses"].([]map[string]any)
	assert.Contains(t, responses[0]["error"], "destination address is not allowed")
	assert.NotContains(t, responses[0], "status_code")
	assert.Equal(t, "endpoint must be an http or https URL", responses[1]["error"])
	assert.Zero(t, hits.Load())
}

func TestIsPublicAddr(t *testing.T) {
	tests := []struct {
		addr string
		want bool
	}{
		{"127.0.0.1", false},
		{"10.1.2.3", false},
		{"172.16.0.1", false},
		{"192.168.1.10", false},
		{"169.254.169.254", false},
		{"100.64.0.1", false},
		{"0.0.0.0", false},
		{"::1", false},
		{"fe80::1", false},
		{"fd00:ec2::254", false},
		{"::ffff:127.0.0.1", false},
		{"8.8.8.8", true},
		{"2606:4700:4700::1111", true},
	}

	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			assert.Equal(t, tt.want, isPublicAddr(netip.MustParseAddr(tt.addr)))
		})
	}
}

func TestProcessImages(t *testing.T) {
	ctx := context.Background()
	agent := &models.AIAgent{Type: models.AgentImageProcessor}

	t.Run("decodes dimensions", func(t *testing.T) {
		output, err := processImages(ctx, agent, map[string]any{
			"images": []any{encodePNG(t, 4, 3)},
			"image":  "data:image/png;base64," + encodePNG(t, 1, 1),
		})
		require.NoError(t, err)

		assert.Equal(t, 2, output["images_processed"])
		images := output["images"].([]map[string]any)
		assert.Equal(t, "png", images[0]["format"])
		assert.Equal(t, 4, images[0]["width"])
		assert.Equal(t, 3, images[0]["height"])
		assert.Equal(t, 1, images[1]["width"])
	})

	t.Run("invalid base64", func(t *testing.T) {
		_, err := processImages(ctx, agent, map[string]any{"image": "***"})
		assert.ErrorContains(t, err, "not valid base64")
	})

	t.Run("not an image", func(t *testing.T) {
		_, err := processImages(ctx, agent, map[string]any{
			"image": base64.StdEncoding.EncodeToString([]byte("plain text")),
		})
		assert.ErrorContains(t, err, "could not be decoded")
	})

	t.Run("missing images", func(t *testing.T) {
		_, err := processImages(ctx, agent, map[string]any{})
		assert.Error(t, err)
	})
}
