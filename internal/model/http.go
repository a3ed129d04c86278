package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Forward responses carry full logit tensors, so the read limit is generous.
const maxResponseBytes = 256 << 20

// ClientConfig configures the HTTP inference backend.
type ClientConfig struct {
	BaseURL string
	APIKey  string
	Name    string
	Timeout time.Duration
}

// Client talks to an inference server exposing a model card plus token-id
// level generate and forward endpoints.
type Client struct {
	baseURL    string
	apiKey     string
	name       string
	typ        ModelType
	card       Card
	httpClient *http.Client
}

// Connect fetches the model card and pins the variant once, retrying
// transient failures with jittered backoff while the server warms up.
func Connect(ctx context.Context, cfg ClientConfig) (*Client, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		name:       cfg.Name,
		httpClient: &http.Client{Timeout: timeout},
	}

	var lastErr error
	for attempt := 0; attempt < maxConnectAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff(attempt - 1)):
			}
		}

		card, err := c.fetchCard(ctx)
		if err != nil {
			lastErr = err
			if !isRetryable(err) {
				return nil, err
			}
			continue
		}
		typ, err := ParseModelType(card.ModelType)
		if err != nil {
			return nil, err
		}
		c.card = *card
		c.typ = typ
		return c, nil
	}
	return nil, fmt.Errorf("model server not ready after %d attempts: %w", maxConnectAttempts, lastErr)
}

func (c *Client) fetchCard(ctx context.Context) (*Card, error) {
	u := c.baseURL + "/v1/model"
	if c.name != "" {
		u += "?name=" + url.QueryEscape(c.name)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	var card Card
	if err := c.do(req, &card); err != nil {
		return nil, err
	}
	return &card, nil
}

type generateBody struct {
	Model         string      `json:"model"`
	InputIDs      [][]int     `json:"input_ids"`
	AttentionMask [][]float64 `json:"attention_mask"`
	MaxLength     int         `json:"max_length"`
	NumBeams      int         `json:"num_beams"`
}

type generateResponse struct {
	OutputIDs [][]int `json:"output_ids"`
}

func (c *Client) Generate(ctx context.Context, req GenerateRequest) ([][]int, error) {
	body := generateBody{
		Model:         c.name,
		InputIDs:      req.InputIDs,
		AttentionMask: floatMask(req.AttentionMask),
		MaxLength:     req.MaxLength,
		NumBeams:      req.NumBeams,
	}

	var out generateResponse
	if err := c.post(ctx, "/v1/generate", body, &out); err != nil {
		return nil, err
	}
	if len(out.OutputIDs) != len(req.InputIDs) {
		return nil, fmt.Errorf("model returned %d sequences for %d inputs", len(out.OutputIDs), len(req.InputIDs))
	}
	return out.OutputIDs, nil
}

type forwardBody struct {
	Model         string      `json:"model"`
	InputIDs      [][]int     `json:"input_ids"`
	AttentionMask [][]float64 `json:"attention_mask"`
	Labels        [][]int     `json:"labels"`
}

type forwardResponse struct {
	Loss   float64       `json:"loss"`
	Logits [][][]float64 `json:"logits"`
}

func (c *Client) Forward(ctx context.Context, req ForwardRequest) (*ForwardResult, error) {
	body := forwardBody{
		Model:         c.name,
		InputIDs:      req.InputIDs,
		AttentionMask: floatMask(req.AttentionMask),
		Labels:        req.Labels,
	}

	var out forwardResponse
	if err := c.post(ctx, "/v1/forward", body, &out); err != nil {
		return nil, err
	}
	return &ForwardResult{Loss: out.Loss, Logits: out.Logits}, nil
}

func (c *Client) Type() ModelType {
	return c.typ
}

func (c *Client) Name() string {
	if c.card.Name != "" {
		return c.card.Name
	}
	return c.name
}

// CardInfo returns the model card resolved at connect time.
func (c *Client) CardInfo() Card {
	return c.card
}

// Close releases resources.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("model api: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return &RetryableError{StatusCode: resp.StatusCode, Message: string(body)}
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("model api status %d: %s", resp.StatusCode, excerpt(string(body), 200))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// floatMask converts an int attention mask to the float form the wire
// protocol carries.
func floatMask(mask [][]int) [][]float64 {
	out := make([][]float64, len(mask))
	for i, row := range mask {
		fr := make([]float64, len(row))
		for j, v := range row {
			fr[j] = float64(v)
		}
		out[i] = fr
	}
	return out
}
