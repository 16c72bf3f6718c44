package server

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/54b3r/docchat-go/internal/logging"
)

// authMiddleware enforces "Authorization: Bearer <apiKey>". An empty apiKey
// disables the check; New logs a warning at startup instead. Rejections get
// 401 with a WWW-Authenticate challenge and the usual JSON error envelope.
// Token values are never logged.
func authMiddleware(apiKey string, next http.Handler) http.Handler {
	if apiKey == "" {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		switch {
		case token == "":
			unauthorized(w, r, `Bearer realm="docchat"`, "authorization required")
		case subtle.ConstantTimeCompare([]byte(token), []byte(apiKey)) != 1:
			unauthorized(w, r, `Bearer realm="docchat" error="invalid_token"`, "invalid token")
		default:
			next.ServeHTTP(w, r)
		}
	})
}

func unauthorized(w http.ResponseWriter, r *http.Request, challenge, msg string) {
	logging.FromContext(r.Context()).Warn("auth: request rejected",
		slog.String("path", r.URL.Path),
		slog.String("reason", msg),
	)
	w.Header().Set("WWW-Authenticate", challenge)
	writeJSON(w, r, http.StatusUnauthorized, errorBody{Error: errorDetail{
		Kind:    "unauthorized",
		Message: msg,
	}})
}

// bearerToken extracts the token from an "Authorization: Bearer <token>"
// header, or "" if the header is absent or uses another scheme.
func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
