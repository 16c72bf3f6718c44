package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/54b3r/docchat-go/internal/conversation"
	"github.com/54b3r/docchat-go/internal/logging"
	"github.com/54b3r/docchat-go/internal/rag"
	"github.com/54b3r/docchat-go/internal/tracing"
)

// askOutput is the --json output of `docchat ask`, the same shape as the
// POST /ask response.
type askOutput struct {
	Response    string               `json:"response"`
	ChatHistory conversation.History `json:"chat_history"`
}

// NewAskCmd constructs the `docchat ask` command, which answers a single
// question against the persisted index.
func NewAskCmd() *cobra.Command {
	var historyPath string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question about the indexed documents",
		Long: `Answer a question against the persisted index.

Pass --history with a JSON chat history (as returned by POST /ask or by a
previous 'docchat ask --json') to ask a follow-up question.

Examples:
  docchat ask "what is the refund policy?"
  docchat ask --json "what is the refund policy?" > turn1.json
  docchat ask --history turn1.json "and for digital goods?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			history, err := readHistory(historyPath)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			flush := tracing.Enable(tracing.SettingsFromEnv(), log)
			defer flush()

			ix, err := buildIndexStack(ctx, log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer ix.close()

			q, err := buildQueryStack(ctx, log, ix)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			loaded, err := ix.manager.LoadPersisted(ctx)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			if !loaded {
				return rag.NewError(rag.KindNoIndex, "ask", "no persisted index, run 'docchat ingest' first", nil)
			}

			res, err := q.orchestrator.Ask(ctx, strings.Join(args, " "), history)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(askOutput{Response: res.Answer, ChatHistory: res.History})
			}
			fmt.Fprintln(out, res.Answer)
			if len(res.Sources) > 0 {
				fmt.Fprintln(out, "\nSources:")
				for _, h := range res.Sources {
					fmt.Fprintf(out, "  %s#%d (score %.3f)\n", h.Entry.Chunk.SourceID, h.Entry.Chunk.Ordinal, h.Score)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&historyPath, "history", "", "JSON file holding the prior chat history")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print {response, chat_history} as JSON")

	return cmd
}

// readHistory loads a chat history from path. It accepts either a bare
// history array or an object with a chat_history field.
func readHistory(path string) (conversation.History, error) {
	if path == "" {
		return conversation.History{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}

	var h conversation.History
	if err := json.Unmarshal(data, &h); err == nil {
		return h, h.Validate()
	}
	var wrapped askOutput
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("parse history %s: %w", path, err)
	}
	return wrapped.ChatHistory, wrapped.ChatHistory.Validate()
}
