package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/54b3r/docchat-go/internal/conversation"
	"github.com/54b3r/docchat-go/internal/ingestion"
	"github.com/54b3r/docchat-go/internal/logging"
	"github.com/54b3r/docchat-go/internal/rag"
)

// refreshMessage is the success message of POST /refresh_index.
const refreshMessage = "index refreshed successfully"

// handleAsk handles POST /ask. The caller sends the full chat history and
// receives it back extended by the new turn pair.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req askRequest
	if !s.decode(w, r, &req) {
		s.metrics.observeAsk(string(rag.KindInvalidInput), time.Since(start))
		return
	}
	if req.ChatHistory == nil {
		req.ChatHistory = conversation.History{}
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.AskTimeout)
	defer cancel()

	res, err := s.asker.Ask(ctx, req.Question, req.ChatHistory)
	if err != nil {
		outcome := string(rag.KindOf(err))
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			outcome = "timeout"
		}
		if outcome == "" {
			outcome = "error"
		}
		s.metrics.observeAsk(outcome, time.Since(start))
		writeError(w, r, err)
		return
	}
	s.metrics.observeAsk("ok", time.Since(start))

	resp := askResponse{Response: res.Answer, ChatHistory: res.History}
	for _, h := range res.Sources {
		resp.Sources = append(resp.Sources, sourceRef{
			SourceID: h.Entry.Chunk.SourceID,
			Ordinal:  h.Entry.Chunk.Ordinal,
			Score:    h.Score,
		})
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// handleRefresh handles POST /refresh_index. The rebuild runs detached from
// the client connection so a disconnect cannot abort it half way.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.rebuildContext(r)
	defer cancel()

	idx, err := s.indexes.Refresh(ctx)
	s.metrics.observeRebuild("refresh", err)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, refreshResponse{
		Message: refreshMessage,
		IndexID: idx.ID(),
		Entries: idx.Len(),
	})
}

// handleIngest handles POST /api/ingest: it rebuilds the index from the
// supplied documents, replacing the previous document set.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if !s.decode(w, r, &req) {
		return
	}
	docs := ingestion.FromTexts(req.Documents)
	if len(docs) == 0 {
		writeError(w, r, rag.NewError(rag.KindInvalidInput, "ingest", "no non-empty documents supplied", nil))
		return
	}

	ctx, cancel := s.rebuildContext(r)
	defer cancel()

	idx, err := s.indexes.Rebuild(ctx, docs)
	s.metrics.observeRebuild("ingest", err)
	if err != nil {
		writeError(w, r, err)
		return
	}
	logging.FromContext(r.Context()).Info("ingest: index rebuilt",
		slog.Int("documents", len(docs)),
		slog.Int("entries", idx.Len()),
	)
	writeJSON(w, r, http.StatusOK, refreshResponse{
		Message: "index rebuilt from ingested documents",
		IndexID: idx.ID(),
		Entries: idx.Len(),
	})
}

// handleIndex handles GET /api/index and reports the active index.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	idx, err := s.indexes.Current()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, indexResponse{
		IndexID:    idx.ID(),
		BuiltAt:    idx.BuiltAt(),
		Entries:    idx.Len(),
		Dimension:  idx.Dimension(),
		Rebuilding: s.indexes.Rebuilding(),
	})
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) rebuildContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(r.Context()), s.cfg.RebuildTimeout)
}

// decode reads a JSON body into v, writing a 400 response on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		writeError(w, r, rag.NewError(rag.KindInvalidInput, "decode", "invalid JSON request body", err))
		return false
	}
	return true
}
