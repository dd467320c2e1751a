// Package openai implements quarry.EmbeddingProvider against any
// OpenAI-compatible embeddings endpoint (OpenAI, Azure, Ollama, LocalAI).
package openai

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	quarry "github.com/quarrydocs/quarry"
)

const defaultEndpoint = "https://api.openai.com/v1"

// Embedding calls the /embeddings route of an OpenAI-compatible API.
type Embedding struct {
	endpoint   string
	apiKey     string
	model      string
	dims       int
	httpClient *http.Client
}

var _ quarry.EmbeddingProvider = (*Embedding)(nil)

// EmbeddingOption configures an Embedding.
type EmbeddingOption func(*Embedding)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) EmbeddingOption {
	return func(e *Embedding) { e.httpClient = c }
}

// WithEndpoint points the client at a non-default base URL, for example an
// Ollama or LocalAI server. A trailing slash is tolerated.
func WithEndpoint(url string) EmbeddingOption {
	return func(e *Embedding) {
		if url != "" {
			e.endpoint = strings.TrimRight(url, "/")
		}
	}
}

// NewEmbedding creates an embedding client for the given model. dims <= 0
// leaves the output dimensionality to the model default.
func NewEmbedding(apiKey, model string, dims int, opts ...EmbeddingOption) *Embedding {
	e := &Embedding{
		endpoint:   defaultEndpoint,
		apiKey:     apiKey,
		model:      model,
		dims:       dims,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Name returns "openai".
func (e *Embedding) Name() string { return "openai" }

// Dimensions returns the configured embedding dimensionality.
func (e *Embedding) Dimensions() int { return e.dims }

type embedRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed embeds all texts in a single batched request. The returned slice is
// index-aligned with the input.
func (e *Embedding) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	payload, err := sonic.Marshal(embedRequest{Model: e.model, Input: texts, Dimensions: e.dims})
	if err != nil {
		return nil, &quarry.ErrEmbedding{Provider: e.Name(), Message: "marshal request: " + err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint+"/embeddings", strings.NewReader(string(payload)))
	if err != nil {
		return nil, &quarry.ErrEmbedding{Provider: e.Name(), Message: "create request: " + err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, &quarry.ErrEmbedding{Provider: e.Name(), Message: "request failed: " + err.Error()}
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, &quarry.ErrEmbedding{Provider: e.Name(), Message: "read response: " + err.Error()}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &quarry.ErrEmbedding{
			Provider: e.Name(),
			Message:  fmt.Sprintf("status %d: %s", resp.StatusCode, truncate(string(body), 200)),
		}
	}

	var parsed embedResponse
	if err := sonic.Unmarshal(body, &parsed); err != nil {
		return nil, &quarry.ErrEmbedding{Provider: e.Name(), Message: "parse response: " + err.Error()}
	}
	if len(parsed.Data) != len(texts) {
		return nil, &quarry.ErrEmbedding{
			Provider: e.Name(),
			Message:  fmt.Sprintf("got %d embeddings for %d inputs", len(parsed.Data), len(texts)),
		}
	}

	// The API may return entries out of order; place each by its index.
	vecs := make([][]float32, len(texts))
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= len(vecs) {
			return nil, &quarry.ErrEmbedding{Provider: e.Name(), Message: fmt.Sprintf("embedding index %d out of range", d.Index)}
		}
		vecs[d.Index] = d.Embedding
	}
	return vecs, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
