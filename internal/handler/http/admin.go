package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sedirimou/Gameva-sub003/internal/service"
	"github.com/sedirimou/Gameva-sub003/pkg/httputil"
	"github.com/sedirimou/Gameva-sub003/pkg/validator"
)

// Admin actions.
const (
	ActionStats   = "stats"
	ActionReindex = "reindex"
	ActionClear   = "clear"
)

// AdminHandler exposes index maintenance to operators.
type AdminHandler struct {
	indexing *service.IndexingService
	logger   *slog.Logger
}

// NewAdminHandler creates a new admin HTTP handler.
func NewAdminHandler(indexing *service.IndexingService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{indexing: indexing, logger: logger}
}

// AdminRequest is the JSON body of POST /api/v1/admin/search.
type AdminRequest struct {
	Action string `json:"action" validate:"required,oneof=reindex clear"`
}

// StatsResponse is returned by the stats action.
type StatsResponse struct {
	Success        bool      `json:"success"`
	TotalDocuments int       `json:"totalDocuments"`
	Name           string    `json:"name"`
	Created        time.Time `json:"created"`
}

// ReindexResponse is returned by the reindex action.
type ReindexResponse struct {
	Success      bool                   `json:"success"`
	TotalIndexed int                    `json:"totalIndexed"`
	Failed       int                    `json:"failed"`
	Strategy     string                 `json:"strategy"`
	Message      string                 `json:"message"`
	Report       *service.ReindexReport `json:"report,omitempty"`
}

// MessageResponse is returned by actions without a payload.
type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Get handles GET /api/v1/admin/search?action=stats
func (h *AdminHandler) Get(w http.ResponseWriter, r *http.Request) {
	action := r.URL.Query().Get("action")
	if action != ActionStats {
		httputil.WriteErrorCode(w, r, http.StatusBadRequest, "INVALID_ACTION",
			fmt.Sprintf("unknown action %q: GET supports action=stats", action))
		return
	}

	stats, err := h.indexing.Stats(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, StatsResponse{
		Success:        true,
		TotalDocuments: stats.TotalDocuments,
		Name:           stats.Name,
		Created:        stats.CreatedAt,
	})
}

// Post handles POST /api/v1/admin/search with {"action": "reindex"|"clear"}.
// Reindexing runs in the request; it answers once the index is rebuilt.
func (h *AdminHandler) Post(w http.ResponseWriter, r *http.Request) {
	var req AdminRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	switch req.Action {
	case ActionReindex:
		// A dropped connection must not abort a half-built rebuild.
		report, err := h.indexing.ReindexAll(context.WithoutCancel(r.Context()))
		if err != nil {
			httputil.WriteError(w, r, err, h.logger)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, ReindexResponse{
			Success:      true,
			TotalIndexed: report.Indexed,
			Failed:       report.Failed,
			Strategy:     report.Strategy,
			Message:      fmt.Sprintf("indexed %d of %d products", report.Indexed, report.Total),
			Report:       report,
		})

	case ActionClear:
		if err := h.indexing.Clear(r.Context()); err != nil {
			httputil.WriteError(w, r, err, h.logger)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "search index cleared"})
	}
}
