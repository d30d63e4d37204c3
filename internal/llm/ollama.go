package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// OllamaConfig holds connection settings for a local Ollama instance.
type OllamaConfig struct {
	BaseURL        string        // API base URL (default: http://localhost:11434)
	EmbeddingModel string        // Model for /api/embed (default: nomic-embed-text)
	CompletionModel string       // Model for /api/generate (default: qwen2.5:7b)
	Timeout        time.Duration // Per-request timeout (default: 10s)

	// EmbedRatePerSec caps embedding requests per second. Zero disables the
	// limiter. Every turn issues several embed calls, so an unbounded burst
	// can starve the completion path on small machines.
	EmbedRatePerSec float64
}

// OllamaClient implements EmbeddingGenerator and TextGenerator against a
// local Ollama server. All calls run behind a shared circuit breaker, and
// embedding calls additionally pass through a client-side rate limiter.
type OllamaClient struct {
	baseURL         string
	embeddingModel  string
	completionModel string
	timeout         time.Duration
	client          *http.Client
	breaker         *CircuitBreaker
	limiter         *rate.Limiter
}

type embedRequest struct {
	Model string `json:"model"`
	Input any    `json:"input"` // string or []string
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// NewOllamaClient creates a client with defaults applied for any zero-valued
// configuration field.
func NewOllamaClient(config OllamaConfig) *OllamaClient {
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434"
	}
	if config.EmbeddingModel == "" {
		config.EmbeddingModel = "nomic-embed-text"
	}
	if config.CompletionModel == "" {
		config.CompletionModel = "qwen2.5:7b"
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}

	var limiter *rate.Limiter
	if config.EmbedRatePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.EmbedRatePerSec), 1)
	}

	return &OllamaClient{
		baseURL:         config.BaseURL,
		embeddingModel:  config.EmbeddingModel,
		completionModel: config.CompletionModel,
		timeout:         config.Timeout,
		client:          &http.Client{Timeout: config.Timeout},
		breaker:         NewCircuitBreaker(DefaultCircuitBreakerConfig()),
		limiter:         limiter,
	}
}

// Embed generates an embedding for a single text.
func (c *OllamaClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch generates embeddings for several texts in one request.
// The call waits on the rate limiter (counted once per batch) and runs under
// circuit breaker protection.
func (c *OllamaClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("embed rate limiter: %w", err)
		}
	}

	result, err := c.breaker.Execute(ctx, func() (interface{}, error) {
		return c.embedBatch(ctx, texts)
	})
	if err != nil {
		if errors.Is(err, ErrCircuitOpen) {
			return nil, fmt.Errorf("ollama circuit breaker open: %w", err)
		}
		return nil, err
	}
	return result.([][]float32), nil
}

func (c *OllamaClient) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var respData embedResponse
	input := any(texts)
	if len(texts) == 1 {
		input = texts[0]
	}
	err := c.post(ctx, "/api/embed", embedRequest{Model: c.embeddingModel, Input: input}, &respData)
	if err != nil {
		return nil, err
	}

	if len(respData.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama returned %d embeddings for %d inputs", len(respData.Embeddings), len(texts))
	}
	for i, vec := range respData.Embeddings {
		if len(vec) == 0 {
			return nil, fmt.Errorf("ollama returned empty embedding for input %d", i)
		}
	}
	return respData.Embeddings, nil
}

// Complete sends a completion request and returns the response text.
func (c *OllamaClient) Complete(ctx context.Context, prompt string) (string, error) {
	result, err := c.breaker.Execute(ctx, func() (interface{}, error) {
		return c.complete(ctx, prompt)
	})
	if err != nil {
		if errors.Is(err, ErrCircuitOpen) {
			return "", fmt.Errorf("ollama circuit breaker open: %w", err)
		}
		return "", err
	}
	return result.(string), nil
}

func (c *OllamaClient) complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var respData generateResponse
	err := c.post(ctx, "/api/generate", generateRequest{
		Model:  c.completionModel,
		Prompt: prompt,
		Stream: false,
	}, &respData)
	if err != nil {
		return "", err
	}
	return respData.Response, nil
}

// post issues a JSON POST to the given API path and decodes the response.
func (c *OllamaClient) post(ctx context.Context, path string, body, out interface{}) error {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, string(raw))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// HealthCheck verifies that Ollama is reachable. It bypasses the circuit
// breaker since it is itself the health probe.
func (c *OllamaClient) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/version", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("ollama unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama health check returned status %d", resp.StatusCode)
	}
	return nil
}

// GetModel returns the embedding model name.
func (c *OllamaClient) GetModel() string {
	return c.embeddingModel
}

// Interface conformance checks.
var (
	_ EmbeddingGenerator = (*OllamaClient)(nil)
	_ TextGenerator      = (*OllamaClient)(nil)
)
