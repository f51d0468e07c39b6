package together

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"
)

const (
	defaultTimeout      = 60 * time.Second
	maxIdleConns        = 100
	maxConnsPerHost     = 100
	idleConnTimeout     = 90 * time.Second
	tlsHandshakeTimeout = 10 * time.Second

	interAttemptBackoff = 500 * time.Millisecond
)

// ErrExhausted is returned when the primary model and every fallback
// model failed.
var ErrExhausted = errors.New("together: all completion models exhausted")

// Client is an OpenAI-compatible chat/embeddings API client with
// HTTP/2 pooling. It holds no per-call state; every attempt is an
// independent network call.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	timeout    time.Duration
}

// NewClient creates a client for an OpenAI-compatible endpoint.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	transport := &http.Transport{
		MaxIdleConns:        maxIdleConns,
		MaxIdleConnsPerHost: maxConnsPerHost,
		MaxConnsPerHost:     maxConnsPerHost,
		IdleConnTimeout:     idleConnTimeout,
		TLSHandshakeTimeout: tlsHandshakeTimeout,
		ForceAttemptHTTP2:   true,
	}
	return &Client{
		httpClient: &http.Client{Transport: transport},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		timeout:    timeout,
	}
}

// CompletionRequest is one logical completion call. Models lists the
// primary model first, then fallbacks in order.
type CompletionRequest struct {
	System      string
	User        string
	Models      []string
	MaxTokens   int
	Temperature float64
	// JSONObject asks the service for a single-JSON-object response.
	// The service may ignore it; callers must parse tolerantly.
	JSONObject bool
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatCompletionRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Temperature    float64         `json:"temperature,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *APIError `json:"error,omitempty"`
}

// APIError is the error payload of the completion/embedding service.
type APIError struct {
	Code    any    `json:"code"`
	Message string `json:"message"`
	Type    string `json:"type"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("together API error (%s): %s", e.Type, e.Message)
}

// Complete runs the request against the primary model, then each
// fallback in order. A timeout, non-2xx status, API error, or empty
// response all count as a failed attempt; the next model is tried
// exactly once. Returns ErrExhausted (wrapping the last failure) when
// every model failed.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if len(req.Models) == 0 {
		return "", errors.New("together: no models configured")
	}

	var lastErr error
	for i, model := range req.Models {
		if i > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(jitteredBackoff()):
			}
		}

		text, err := c.completeOnce(ctx, model, req)
		if err == nil {
			return text, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		lastErr = fmt.Errorf("model %s: %w", model, err)
	}

	return "", fmt.Errorf("%w: %w", ErrExhausted, lastErr)
}

func (c *Client) completeOnce(ctx context.Context, model string, req CompletionRequest) (string, error) {
	body := chatCompletionRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.User},
		},
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if req.JSONObject {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	respBody, err := c.post(ctx, "/chat/completions", body)
	if err != nil {
		return "", err
	}

	var result chatCompletionResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if result.Error != nil {
		return "", result.Error
	}
	if len(result.Choices) == 0 {
		return "", errors.New("no choices in response")
	}
	text := result.Choices[0].Message.Content
	if strings.TrimSpace(text) == "" {
		return "", errors.New("empty completion text")
	}
	return text, nil
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
	Error *APIError `json:"error,omitempty"`
}

// Embed returns the embedding vector for the given text.
func (c *Client) Embed(ctx context.Context, model, text string) ([]float64, error) {
	respBody, err := c.post(ctx, "/embeddings", embeddingRequest{
		Model: model,
		Input: []string{strings.ReplaceAll(text, "\n", " ")},
	})
	if err != nil {
		return nil, err
	}

	var result embeddingResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if result.Error != nil {
		return nil, result.Error
	}
	if len(result.Data) == 0 || len(result.Data[0].Embedding) == 0 {
		return nil, errors.New("empty embedding response")
	}
	return result.Data[0].Embedding, nil
}

// post sends one bounded-timeout request and returns the body for 2xx
// responses.
func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(attemptCtx, "POST", c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, truncateBody(respBody))
	}
	return respBody, nil
}

func truncateBody(b []byte) string {
	const max = 200
	s := string(b)
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}

func jitteredBackoff() time.Duration {
	jitter := float64(interAttemptBackoff) * 0.25 * (rand.Float64()*2 - 1)
	return interAttemptBackoff + time.Duration(jitter)
}
