// Package ingestion loads raw documents from local files and HTTP URLs into
// rag.Documents ready for chunking. It is invoked by `docchat ingest` and
// POST /api/ingest.
package ingestion

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/54b3r/docchat-go/internal/rag"
)

// Source describes one input to ingest. Exactly one field is set.
type Source struct {
	// Path is a file or directory. Directories are walked recursively.
	Path string

	// URL is an HTTP(S) URL whose body is ingested as plain text.
	URL string
}

// Config holds the configuration for the loader.
type Config struct {
	// Extensions lists the file extensions picked up when walking a
	// directory. Defaults to .txt and .md.
	Extensions []string

	// MaxBytes caps the size of a single document. Defaults to 10 MiB.
	MaxBytes int64

	// HTTPTimeout is the timeout for each fetch request.
	// Defaults to 30s if zero.
	HTTPTimeout time.Duration

	// UserAgent is the HTTP User-Agent header sent with fetch requests.
	UserAgent string
}

// Loader reads sources into documents.
type Loader struct {
	cfg        *Config
	httpClient *http.Client
}

// NewLoader constructs a Loader, filling defaults into cfg.
func NewLoader(cfg *Config) *Loader {
	if cfg == nil {
		cfg = &Config{}
	}
	if len(cfg.Extensions) == 0 {
		cfg.Extensions = []string{".txt", ".md"}
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 10 << 20
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "docchat-go/1.0 (document ingestion)"
	}
	return &Loader{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.HTTPTimeout,
		},
	}
}

// Load reads every source and returns the non-blank documents in source
// order. It returns the first error encountered. Progress is reported via
// the optional progress callback.
func (l *Loader) Load(ctx context.Context, sources []Source, progress func(msg string)) ([]rag.Document, error) {
	if progress == nil {
		progress = func(string) {}
	}

	var docs []rag.Document
	for _, src := range sources {
		switch {
		case src.URL != "" && src.Path != "":
			return nil, fmt.Errorf("ingestion: source sets both path %q and url %q", src.Path, src.URL)
		case src.URL != "":
			progress(fmt.Sprintf("fetching %s", src.URL))
			text, err := l.fetch(ctx, src.URL)
			if err != nil {
				return nil, fmt.Errorf("ingestion: fetch failed for %s: %w", src.URL, err)
			}
			docs = appendDocument(docs, src.URL, text)
		case src.Path != "":
			found, err := l.walk(ctx, src.Path, progress)
			if err != nil {
				return nil, err
			}
			docs = append(docs, found...)
		default:
			return nil, fmt.Errorf("ingestion: empty source")
		}
	}

	progress(fmt.Sprintf("loaded %d documents", len(docs)))
	return docs, nil
}

// FromTexts builds documents from already-extracted text keyed by source
// name. Blank texts are skipped.
func FromTexts(texts []SourceText) []rag.Document {
	var docs []rag.Document
	for _, t := range texts {
		docs = appendDocument(docs, t.Source, t.Text)
	}
	return docs
}

// SourceText is a document whose text was extracted elsewhere.
type SourceText struct {
	Source string `json:"source"`
	Text   string `json:"text"`
}

func (l *Loader) walk(ctx context.Context, root string, progress func(string)) ([]rag.Document, error) {
	var docs []rag.Document
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			return nil
		}
		// An explicitly named file is read regardless of extension.
		if path != root && !slices.Contains(l.cfg.Extensions, strings.ToLower(filepath.Ext(path))) {
			return nil
		}
		text, err := l.readFile(path)
		if err != nil {
			return err
		}
		progress(fmt.Sprintf("read %s", path))
		docs = appendDocument(docs, path, text)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ingestion: walk %s: %w", root, err)
	}
	return docs, nil
}

func (l *Loader) readFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return l.readLimited(f, path)
}

// fetch retrieves the raw text content of a URL.
func (l *Loader) fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", l.cfg.UserAgent)
	req.Header.Set("Accept", "text/plain, text/markdown, text/html")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d for %s", resp.StatusCode, url)
	}
	return l.readLimited(resp.Body, url)
}

func (l *Loader) readLimited(r io.Reader, name string) (string, error) {
	body, err := io.ReadAll(io.LimitReader(r, l.cfg.MaxBytes+1))
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", name, err)
	}
	if int64(len(body)) > l.cfg.MaxBytes {
		return "", fmt.Errorf("%s exceeds %d bytes", name, l.cfg.MaxBytes)
	}
	if !utf8.Valid(body) {
		return "", fmt.Errorf("%s is not valid UTF-8 text", name)
	}
	return string(body), nil
}

func appendDocument(docs []rag.Document, source, text string) []rag.Document {
	if strings.TrimSpace(text) == "" {
		return docs
	}
	return append(docs, rag.Document{ID: documentID(source), Source: source, Text: text})
}

// documentID derives a stable ID from the document source.
func documentID(source string) string {
	h := sha256.Sum256([]byte(source))
	return fmt.Sprintf("%x", h[:16])
}
