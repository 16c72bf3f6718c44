// Package embedder provides rag.Embedder implementations for Ollama, OpenAI,
// Azure OpenAI and Gemini. The OpenAI-style and Ollama backends talk plain
// HTTP; Gemini goes through the genai client.
package embedder

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// OpenAIEmbedder calls the OpenAI embeddings API, or the Azure OpenAI
// deployment-scoped variant of it.
type OpenAIEmbedder struct {
	url        string
	header     http.Header
	model      string
	dimensions int
	client     *http.Client
}

// OpenAIConfig holds the settings for constructing an OpenAIEmbedder.
type OpenAIConfig struct {
	// BaseURL is "https://api.openai.com/v1" for OpenAI or
	// "https://<resource>.openai.azure.com/openai" for Azure.
	BaseURL string
	// APIKey is sent as a Bearer token, or as the api-key header on Azure.
	APIKey string
	// Model is the embedding model, or the deployment name on Azure.
	Model string
	// Dimensions requests a vector length (0 = model default).
	Dimensions int
	// Azure selects deployment URLs, api-key auth and the api-version param.
	Azure bool
	// APIVersion is the Azure OpenAI API version. Ignored unless Azure is set.
	APIVersion string
}

// NewOpenAIEmbedder constructs an OpenAIEmbedder.
func NewOpenAIEmbedder(cfg *OpenAIConfig) *OpenAIEmbedder {
	e := &OpenAIEmbedder{
		url:        cfg.BaseURL + "/embeddings",
		header:     http.Header{},
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		client:     &http.Client{Timeout: 30 * time.Second},
	}
	if cfg.Azure {
		e.url = fmt.Sprintf("%s/deployments/%s/embeddings?api-version=%s",
			cfg.BaseURL, url.PathEscape(cfg.Model), url.QueryEscape(cfg.APIVersion))
		e.header.Set("api-key", cfg.APIKey)
	} else {
		e.header.Set("Authorization", "Bearer "+cfg.APIKey)
	}
	return e
}

type openaiEmbedRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type openaiEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (r *openaiEmbedResponse) apiError() string {
	if r.Error == nil {
		return ""
	}
	return r.Error.Message
}

// Embed returns one vector per text, in input order. The API may return data
// out of order, so results are placed by their index field.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	var result openaiEmbedResponse
	req := openaiEmbedRequest{Input: texts, Model: e.model, Dimensions: e.dimensions}
	if err := postJSON(ctx, e.client, "openai", e.url, e.header, req, &result); err != nil {
		return nil, err
	}
	if err := checkCount("openai", len(texts), len(result.Data)); err != nil {
		return nil, err
	}

	out := make([][]float32, len(texts))
	for _, d := range result.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("openai embedder: index %d out of range [0, %d)", d.Index, len(texts))
		}
		out[d.Index] = d.Embedding
	}
	for i, v := range out {
		if len(v) == 0 {
			return nil, fmt.Errorf("openai embedder: missing embedding for input %d", i)
		}
	}
	return out, nil
}
