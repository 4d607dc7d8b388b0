package maintenance

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// SessionCleaner clears refresh tokens that outlived the refresh TTL.
type SessionCleaner interface {
	ClearStaleRefreshTokens(ctx context.Context, olderThan time.Duration) (int64, error)
}

// CleanupHandler is a cron-secret-protected endpoint that drops expired
// refresh tokens from the credential store. Without a configured secret the
// endpoint pretends not to exist.
type CleanupHandler struct {
	cleaner    SessionCleaner
	logger     *slog.Logger
	cronSecret string
	refreshTTL time.Duration
}

func NewCleanupHandler(cleaner SessionCleaner, logger *slog.Logger, cronSecret string, refreshTTL time.Duration) *CleanupHandler {
	return &CleanupHandler{
		cleaner:    cleaner,
		logger:     logger,
		cronSecret: strings.TrimSpace(cronSecret),
		refreshTTL: refreshTTL,
	}
}

func (h *CleanupHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.cronSecret == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) != h.cronSecret {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	cleared, err := h.cleaner.ClearStaleRefreshTokens(r.Context(), h.refreshTTL)
	if err != nil {
		h.logger.Error("session_cleanup_failed", "error", err.Error())
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "cleanup failed"})
		return
	}

	h.logger.Info("session_cleanup_completed", "cleared_refresh_tokens", cleared)

	writeJSON(w, http.StatusOK, map[string]any{
		"status":                 "ok",
		"cleared_refresh_tokens": cleared,
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
