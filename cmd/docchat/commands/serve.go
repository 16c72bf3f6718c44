package commands

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/54b3r/docchat-go/internal/logging"
	"github.com/54b3r/docchat-go/internal/server"
	"github.com/54b3r/docchat-go/internal/tracing"
)

// NewServeCmd constructs the `docchat serve` command, which loads the
// persisted index and starts the HTTP API.
func NewServeCmd() *cobra.Command {
	var host string
	var port int
	var trustProxy bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the docchat HTTP server",
		Long: `Start the docchat HTTP server.

The persisted index (DOCCHAT_INDEX_DIR or Qdrant) is loaded at startup. If
none exists yet, ingest documents with 'docchat ingest' or POST /api/ingest,
then call POST /refresh_index.

Endpoints:
  POST /ask             {question, chat_history} -> {response, chat_history}
  POST /refresh_index   reload or rebuild the index
  POST /api/ingest      rebuild the index from supplied documents
  GET  /api/index       active index metadata
  GET  /api/health      liveness
  GET  /api/ready       readiness
  GET  /metrics         Prometheus metrics

Examples:
  docchat serve
  docchat serve --port 9090
  MODEL_PROVIDER=azure docchat serve`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			flush := tracing.Enable(tracing.SettingsFromEnv(), log)
			defer flush()

			ix, err := buildIndexStack(ctx, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer ix.close()

			q, err := buildQueryStack(ctx, log, ix)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			loaded, err := ix.manager.LoadPersisted(ctx)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			if !loaded {
				log.Warn("serve: no persisted index, /ask is unavailable until an index is built",
					slog.String("hint", "run 'docchat ingest' then POST /refresh_index"))
			}

			srv, err := server.New(q.orchestrator, ix.manager, &server.Config{
				Host:       host,
				Port:       port,
				Logger:     log,
				Pingers:    buildPingers(ix, q),
				APIKey:     ix.settings.APIKey,
				TrustProxy: trustProxy,
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}
			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")
	cmd.Flags().BoolVar(&trustProxy, "trust-proxy", false, "Rate limit on X-Forwarded-For (only behind a trusted reverse proxy)")

	return cmd
}
