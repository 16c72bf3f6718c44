package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// maxResponseBytes caps an embeddings response body.
const maxResponseBytes = 64 << 20

// envelope is a decoded response body that may carry an API error message.
type envelope interface {
	apiError() string
}

// postJSON sends in as a JSON POST to url and decodes the response into out.
// Non-2xx responses become errors carrying the API's own message when it has
// one.
func postJSON(ctx context.Context, hc *http.Client, backend, url string, header http.Header, in any, out envelope) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("%s embedder: marshal request: %w", backend, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%s embedder: create request: %w", backend, err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s embedder: request failed: %w", backend, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%s embedder: read response: %w", backend, err)
	}
	decodeErr := json.Unmarshal(body, out)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := fmt.Sprintf("HTTP %d", resp.StatusCode)
		if decodeErr == nil && out.apiError() != "" {
			msg += ": " + out.apiError()
		}
		return fmt.Errorf("%s embedder: %s", backend, msg)
	}
	if decodeErr != nil {
		return fmt.Errorf("%s embedder: decode response: %w", backend, decodeErr)
	}
	return nil
}

// checkCount reports a response that does not hold one vector per input.
func checkCount(backend string, want, got int) error {
	if want != got {
		return fmt.Errorf("%s embedder: expected %d embeddings, got %d", backend, want, got)
	}
	return nil
}
