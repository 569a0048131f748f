package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/surgefin/ai-gateway/internal/config"
)

// ollamaTopK bounds sampling for the local backend.
const ollamaTopK = 40

// OllamaClient talks to a locally hosted inference server. Internal network
// only; it is never exposed to the public internet.
type OllamaClient struct {
	host      string
	model     string
	maxTokens int
	timeout   time.Duration
	client    *http.Client
}

// NewOllamaClient creates a local inference model client.
func NewOllamaClient(cfg config.OllamaConfig) *OllamaClient {
	return &OllamaClient{
		host:      cfg.Host,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		timeout:   cfg.Timeout,
		client:    &http.Client{Timeout: cfg.Timeout},
	}
}

type ollamaRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	System  string        `json:"system,omitempty"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
	TopP        float64 `json:"top_p"`
	TopK        int     `json:"top_k"`
}

type ollamaResponse struct {
	Response string `json:"response"`
}

// Generate issues one completion call and returns the sanitized reply.
func (c *OllamaClient) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	reqBody := ollamaRequest{
		Model:  c.model,
		Prompt: userPrompt,
		System: systemPrompt,
		Stream: false,
		Options: ollamaOptions{
			Temperature: 0.7,
			NumPredict:  c.maxTokens,
			TopP:        topP,
			TopK:        ollamaTopK,
		},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("%w: marshal request", ErrService)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: build request", ErrService)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		mapped := classifyTransport(err)
		slog.Error("Ollama generation failed", "error", err)
		return "", mapped
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		slog.Error("Ollama API error", "status", resp.StatusCode)
		if resp.StatusCode == http.StatusServiceUnavailable {
			return "", ErrUnavailable
		}
		return "", ErrService
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		slog.Error("Ollama response read failed", "error", err)
		return "", ErrService
	}

	var completion ollamaResponse
	if err := json.Unmarshal(data, &completion); err != nil || completion.Response == "" {
		return "", ErrService
	}

	return sanitizeResponse(completion.Response), nil
}

// HealthCheck reports whether the local server is reachable.
func (c *OllamaClient) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.host+"/api/tags", nil)
	if err != nil {
		return false
	}

	resp, err := c.client.Do(req)
	if err != nil {
		slog.Warn("Ollama health check failed", "error", err)
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}
