package ingestion

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestLoader_WalkFiltersExtensionsAndBlanks(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "The sky is blue.")
	writeFile(t, filepath.Join(dir, "nested", "b.MD"), "# Grass\nGrass is green.")
	writeFile(t, filepath.Join(dir, "c.go"), "package main")
	writeFile(t, filepath.Join(dir, "blank.txt"), "  \n\t")

	var msgs []string
	docs, err := NewLoader(nil).Load(context.Background(), []Source{{Path: dir}}, func(m string) { msgs = append(msgs, m) })
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("want 2 documents, got %d: %+v", len(docs), docs)
	}
	if docs[0].Source != filepath.Join(dir, "a.txt") || docs[0].Text != "The sky is blue." {
		t.Errorf("doc 0: %+v", docs[0])
	}
	if docs[0].ID != documentID(docs[0].Source) || docs[0].ID == docs[1].ID {
		t.Errorf("ids not stable and distinct: %q %q", docs[0].ID, docs[1].ID)
	}
	if len(msgs) == 0 {
		t.Error("no progress reported")
	}
}

func TestLoader_ExplicitFileIgnoresExtension(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "notes.rst")
	writeFile(t, path, "plain text")

	docs, err := NewLoader(nil).Load(context.Background(), []Source{{Path: path}}, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("want 1 document, got %d", len(docs))
	}
}

func TestLoader_Limits(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "big.txt"), "0123456789abc")
	if _, err := NewLoader(&Config{MaxBytes: 10}).Load(context.Background(), []Source{{Path: dir}}, nil); err == nil {
		t.Error("expected size limit error")
	}

	bin := t.TempDir()
	writeFile(t, filepath.Join(bin, "bad.txt"), "\xff\xfe\xfd")
	if _, err := NewLoader(nil).Load(context.Background(), []Source{{Path: bin}}, nil); err == nil {
		t.Error("expected UTF-8 error")
	}
}

func TestLoader_FetchURL(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("User-Agent") == "" {
			t.Error("user agent not set")
		}
		_, _ = w.Write([]byte("remote text"))
	}))
	defer srv.Close()

	l := NewLoader(nil)
	docs, err := l.Load(context.Background(), []Source{{URL: srv.URL + "/doc"}}, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(docs) != 1 || docs[0].Text != "remote text" || docs[0].Source != srv.URL+"/doc" {
		t.Errorf("unexpected docs: %+v", docs)
	}

	if _, err := l.Load(context.Background(), []Source{{URL: srv.URL + "/missing"}}, nil); err == nil {
		t.Error("expected error for 404")
	}
}

func TestLoader_InvalidSources(t *testing.T) {
	t.Parallel()

	l := NewLoader(nil)
	for name, src := range map[string]Source{
		"empty": {},
		"both":  {Path: "a", URL: "http://b"},
		"gone":  {Path: filepath.Join(t.TempDir(), "nope")},
	} {
		if _, err := l.Load(context.Background(), []Source{src}, nil); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestFromTexts(t *testing.T) {
	t.Parallel()

	docs := FromTexts([]SourceText{{Source: "a", Text: "x"}, {Source: "b", Text: " "}})
	if len(docs) != 1 || docs[0].Source != "a" {
		t.Errorf("unexpected docs: %+v", docs)
	}
}
