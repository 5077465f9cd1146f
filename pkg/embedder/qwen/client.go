// Package qwen provides a Qwen embedder implementation using the Alibaba
// Cloud DashScope Text Embedding API.
//
// DashScope's native embedding endpoint is not OpenAI-shaped, so requests are
// issued directly over HTTP. The API caps one call at 10 texts; EmbedBatch
// splits larger inputs into sub-batches and returns nil entries for texts a
// sub-batch failed to embed, matching the embedder.Provider partial-failure
// contract.
package qwen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"
)

// maxBatchSize is the DashScope text-embedding per-request limit.
const maxBatchSize = 10

// Client implements embedder.Provider using the DashScope Text Embedding API.
type Client struct {
	// client is the HTTP client for API requests.
	client *http.Client

	// apiKey is the DashScope API key.
	apiKey string

	// model is the Qwen embedding model name to use.
	model string

	// baseURL is the base URL for the DashScope API.
	baseURL string

	// dimensions is the dimension of embedding vectors.
	dimensions int
}

// Config contains configuration for creating a Qwen embedder client.
type Config struct {
	// APIKey is the DashScope API key (required).
	APIKey string

	// Model is the model name to use (default: "text-embedding-v3").
	Model string

	// BaseURL is the API base URL (default: DashScope official address).
	BaseURL string

	// Dimensions is the vector dimension (default: 1024 for text-embedding-v3).
	Dimensions int

	// HTTPClient is a custom HTTP client (uses a 30s-timeout default if nil).
	HTTPClient *http.Client
}

// NewClient creates a new Qwen embedder client.
func NewClient(cfg *Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("API key is required")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://dashscope.aliyuncs.com/api/v1"
	}

	model := cfg.Model
	if model == "" {
		model = "text-embedding-v3"
	}

	dimensions := cfg.Dimensions
	if dimensions == 0 {
		dimensions = 1024
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	return &Client{
		client:     client,
		apiKey:     cfg.APIKey,
		model:      model,
		baseURL:    baseURL,
		dimensions: dimensions,
	}, nil
}

// Embed converts a single text string into a vector embedding.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("cannot embed empty text")
	}

	embeddings, err := c.call(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 || embeddings[0] == nil {
		return nil, errors.New("embedding generation failed: no embeddings returned from Qwen API")
	}
	return embeddings[0], nil
}

// EmbedBatch converts multiple texts into vectors, splitting the input into
// API-sized sub-batches. A failed sub-batch yields nil entries for its texts
// rather than failing the whole call.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	results := make([][]float64, 0, len(texts))
	for start := 0; start < len(texts); start += maxBatchSize {
		end := start + maxBatchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch, err := c.call(ctx, texts[start:end])
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			batch = make([][]float64, end-start)
		}
		results = append(results, batch...)
	}

	return results, nil
}

// call issues one embedding request. The response entries are re-ordered by
// text_index because DashScope does not guarantee input order.
func (c *Client) call(ctx context.Context, texts []string) ([][]float64, error) {
	reqBody := map[string]interface{}{
		"model": c.model,
		"input": map[string]interface{}{
			"texts": texts,
		},
		"parameters": map[string]interface{}{
			"text_type": "document",
			"dimension": c.dimensions,
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/services/embeddings/text-embedding/text-embedding", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var response struct {
		Output struct {
			Embeddings []struct {
				TextIndex int       `json:"text_index"`
				Embedding []float64 `json:"embedding"`
			} `json:"embeddings"`
		} `json:"output"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	entries := response.Output.Embeddings
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].TextIndex < entries[j].TextIndex
	})

	embeddings := make([][]float64, len(texts))
	for _, e := range entries {
		if e.TextIndex >= 0 && e.TextIndex < len(texts) {
			embeddings[e.TextIndex] = e.Embedding
		}
	}

	return embeddings, nil
}

// Dimensions returns the dimension of embedding vectors produced by this
// provider.
func (c *Client) Dimensions() int {
	return c.dimensions
}

// Close closes the client connection.
// HTTP clients do not need explicit closing; this method is retained for
// interface compatibility.
func (c *Client) Close() error {
	return nil
}
