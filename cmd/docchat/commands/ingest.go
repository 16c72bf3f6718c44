package commands

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/54b3r/docchat-go/internal/ingestion"
	"github.com/54b3r/docchat-go/internal/logging"
)

// NewIngestCmd constructs the `docchat ingest` command, which loads
// documents, rebuilds the index and persists it.
func NewIngestCmd() *cobra.Command {
	var paths []string
	var urls []string
	var exts []string

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Build the document index from files and URLs",
		Long: `Load documents, split them into chunks, embed them and persist the
resulting index. The new index replaces the previous one.

Directories are walked recursively and files matching --ext are read. Files
named explicitly are read regardless of extension. URLs are fetched and their
body is ingested as plain text.

A running server picks up the new index on POST /refresh_index.

Examples:
  docchat ingest --path ./docs
  docchat ingest --path ./handbook.md --url https://example.com/faq.txt
  docchat ingest --path ./notes --ext .txt --ext .rst`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			if len(paths) == 0 && len(urls) == 0 {
				return fmt.Errorf("ingest: at least one --path or --url is required")
			}

			ix, err := buildIndexStack(ctx, log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer ix.close()

			sources := make([]ingestion.Source, 0, len(paths)+len(urls))
			for _, p := range paths {
				sources = append(sources, ingestion.Source{Path: p})
			}
			for _, u := range urls {
				sources = append(sources, ingestion.Source{URL: u})
			}

			loader := ingestion.NewLoader(&ingestion.Config{Extensions: normaliseExts(exts)})
			docs, err := loader.Load(ctx, sources, func(msg string) { log.Info(msg) })
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			if len(docs) == 0 {
				return fmt.Errorf("ingest: no non-empty documents found")
			}
			log.Info("ingest: documents loaded", slog.Int("documents", len(docs)))

			idx, err := ix.manager.Rebuild(ctx, docs)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "indexed %d documents into %d chunks (index %s)\n",
				len(docs), idx.Len(), idx.ID())
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&paths, "path", nil, "File or directory to ingest (repeatable)")
	cmd.Flags().StringArrayVarP(&urls, "url", "u", nil, "URL to fetch and ingest (repeatable)")
	cmd.Flags().StringArrayVar(&exts, "ext", nil, "File extension picked up when walking directories (repeatable, default .txt and .md)")

	return cmd
}

// normaliseExts lower-cases extensions and adds the leading dot.
func normaliseExts(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		out = append(out, e)
	}
	return out
}
