package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/pawprint-labs/groomsched/internal/audit"
)

type AuditHandler struct {
	repo   *audit.Repository
	logger *slog.Logger
}

func NewAuditHandler(repo *audit.Repository, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{repo: repo, logger: logger}
}

func (h *AuditHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	events, err := h.repo.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.Error("audit listing failed", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to list audit events")
		return
	}
	if events == nil {
		events = []audit.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}
