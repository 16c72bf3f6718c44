package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const healthCheckTimeout = 5 * time.Second

// httpHealthCheck issues a GET against a cheap listing endpoint of the backend.
type httpHealthCheck struct {
	client  *http.Client
	url     string
	headers map[string]string
}

// HealthCheck returns nil when the endpoint answers 2xx.
func (h *httpHealthCheck) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return fmt.Errorf("provider: health check: build request: %w", err)
	}
	for k, v := range h.headers {
		req.Header.Set(k, v)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("provider: health check: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("provider: health check: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// HealthCheckFor returns a token-free health check for the configured
// backend, or nil when the backend has no cheap probe (Bedrock).
func HealthCheckFor(cfg *Config) HealthChecker {
	client := &http.Client{Timeout: healthCheckTimeout}
	switch cfg.Backend {
	case BackendOllama:
		return &httpHealthCheck{client: client, url: strings.TrimRight(cfg.Ollama.Host, "/") + "/api/tags"}
	case BackendOpenAI:
		base := cfg.OpenAI.BaseURL
		if base == "" {
			base = "https://api.openai.com/v1"
		}
		return &httpHealthCheck{
			client:  client,
			url:     strings.TrimRight(base, "/") + "/models",
			headers: map[string]string{"Authorization": "Bearer " + cfg.OpenAI.APIKey},
		}
	case BackendAzure:
		az := cfg.AzureOpenAI
		return &httpHealthCheck{
			client:  client,
			url:     strings.TrimRight(az.Endpoint, "/") + "/openai/models?api-version=" + url.QueryEscape(az.APIVersion),
			headers: map[string]string{"api-key": az.APIKey},
		}
	case BackendGemini:
		return &httpHealthCheck{
			client:  client,
			url:     "https://generativelanguage.googleapis.com/v1beta/models",
			headers: map[string]string{"x-goog-api-key": cfg.Gemini.APIKey},
		}
	default:
		return nil
	}
}
