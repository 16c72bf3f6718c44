package embedder

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/54b3r/docchat-go/internal/rag"
)

func TestOllamaEmbedder_Embed(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			t.Errorf("path: got %q", r.URL.Path)
		}
		var req ollamaEmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if req.Model != "nomic-embed-text" {
			t.Errorf("model: got %q", req.Model)
		}
		resp := ollamaEmbedResponse{}
		for i := range req.Input {
			resp.Embeddings = append(resp.Embeddings, []float32{float32(i), 1})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(&OllamaConfig{Host: srv.URL + "/", Model: "nomic-embed-text"})
	got, err := e.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(got) != 2 || got[1][0] != 1 {
		t.Errorf("unexpected embeddings: %v", got)
	}
}

func TestOllamaEmbedder_ErrorBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":"model not found"}`)
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(&OllamaConfig{Host: srv.URL, Model: "missing"})
	_, err := e.Embed(context.Background(), []string{"a"})
	if err == nil || !strings.Contains(err.Error(), "model not found") {
		t.Fatalf("want model-not-found error, got %v", err)
	}
}

func TestOpenAIEmbedder_ReordersByIndex(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("auth header: got %q", got)
		}
		if r.URL.Path != "/v1/embeddings" {
			t.Errorf("path: got %q", r.URL.Path)
		}
		_, _ = io.WriteString(w, `{"data":[{"index":1,"embedding":[2,2]},{"index":0,"embedding":[1,1]}]}`)
	}))
	defer srv.Close()

	e := NewOpenAIEmbedder(&OpenAIConfig{BaseURL: srv.URL + "/v1", APIKey: "sk-test", Model: "text-embedding-3-small"})
	got, err := e.Embed(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if got[0][0] != 1 || got[1][0] != 2 {
		t.Errorf("embeddings not reordered by index: %v", got)
	}
}

func TestOpenAIEmbedder_AzureURLAndHeader(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/openai/deployments/embed-small/embeddings" {
			t.Errorf("path: got %q", r.URL.Path)
		}
		if r.URL.Query().Get("api-version") != "2025-04-01-preview" {
			t.Errorf("api-version: got %q", r.URL.RawQuery)
		}
		if r.Header.Get("api-key") != "az-key" {
			t.Errorf("api-key header missing")
		}
		_, _ = io.WriteString(w, `{"data":[{"index":0,"embedding":[0.5]}]}`)
	}))
	defer srv.Close()

	e := NewOpenAIEmbedder(&OpenAIConfig{
		BaseURL: srv.URL + "/openai", APIKey: "az-key", Model: "embed-small",
		Azure: true, APIVersion: "2025-04-01-preview",
	})
	if _, err := e.Embed(context.Background(), []string{"x"}); err != nil {
		t.Fatalf("Embed: %v", err)
	}
}

func TestEmbed_EmptyInputSkipsRequest(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		t.Error("no request expected for empty input")
	}))
	defer srv.Close()

	got, err := NewOllamaEmbedder(&OllamaConfig{Host: srv.URL, Model: "m"}).Embed(context.Background(), nil)
	if err != nil || got != nil {
		t.Errorf("want nil, nil; got %v, %v", got, err)
	}
}

func TestSettingsFrom(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		env  map[string]string
		want Settings
	}{
		{
			name: "ollama defaults",
			env:  map[string]string{},
			want: Settings{Backend: "ollama", Inherited: true, Model: defaultOllamaModel, Endpoint: "http://localhost:11434"},
		},
		{
			name: "openai inherits chat key",
			env:  map[string]string{"MODEL_PROVIDER": "openai", "OPENAI_API_KEY": "sk-1"},
			want: Settings{Backend: "openai", Inherited: true, Model: defaultOpenAIModel, Endpoint: "https://api.openai.com/v1", APIKey: "sk-1"},
		},
		{
			name: "embedding vars win",
			env: map[string]string{
				"MODEL_PROVIDER": "openai", "EMBEDDING_PROVIDER": "Azure",
				"AZURE_OPENAI_API_KEY": "chat-key", "EMBEDDING_API_KEY": "embed-key",
				"AZURE_OPENAI_ENDPOINT": "https://r.openai.azure.com", "EMBEDDING_MODEL": "embed-small",
				"EMBEDDING_DIMENSIONS": "256",
			},
			want: Settings{
				Backend: "azure", Model: "embed-small", Endpoint: "https://r.openai.azure.com",
				APIKey: "embed-key", APIVersion: defaultAzureAPIVersion, Dimensions: 256,
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := settingsFrom(func(k string) string { return tc.env[k] })
			if got != tc.want {
				t.Errorf("settings:\n got %+v\nwant %+v", got, tc.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	tests := []struct {
		name    string
		s       Settings
		wantErr string
	}{
		{"ollama", Settings{Backend: "ollama", Model: "nomic-embed-text"}, ""},
		{"openai no key", Settings{Backend: "openai"}, "OPENAI_API_KEY"},
		{"azure no endpoint", Settings{Backend: "azure", APIKey: "k"}, "AZURE_OPENAI_ENDPOINT"},
		{"gemini ok", Settings{Backend: "gemini", APIKey: "k"}, ""},
		{"bedrock", Settings{Backend: "bedrock"}, "not supported"},
		{"unknown", Settings{Backend: "cohere"}, "unknown backend"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := Validate(tc.s, log)
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if !errors.Is(err, rag.ErrConfig) || !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("want config error mentioning %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestNew_RejectsUnusableSettings(t *testing.T) {
	t.Parallel()

	if _, err := New(context.Background(), Settings{Backend: "azure", APIKey: "k"}); !errors.Is(err, rag.ErrConfig) {
		t.Errorf("want config error, got %v", err)
	}
	e, err := New(context.Background(), Settings{Backend: "ollama", Endpoint: "http://localhost:11434", Model: "m"})
	if err != nil || e == nil {
		t.Errorf("ollama: got %v, %v", e, err)
	}
}

func TestLooksLikeChatModel(t *testing.T) {
	t.Parallel()

	for model, want := range map[string]bool{
		"nomic-embed-text":       false,
		"text-embedding-3-small": false,
		"llama3":                 true,
		"GPT-4o":                 true,
	} {
		if got := looksLikeChatModel(model); got != want {
			t.Errorf("looksLikeChatModel(%q) = %v, want %v", model, got, want)
		}
	}
}
