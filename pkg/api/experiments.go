package api

import (
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/ConradKhakhria/robot-database-script/pkg/config"
	"github.com/ConradKhakhria/robot-database-script/pkg/database"
)

// ExperimentsHandler handles experiment API endpoints.
type ExperimentsHandler struct {
	Config *config.AppConfig
	Logger *logrus.Logger
	Store  database.Store // nil when the experiments database is unreachable
}

// NewExperimentsHandler creates a new experiments handler.
func NewExperimentsHandler(cfg *config.AppConfig, logger *logrus.Logger, store database.Store) *ExperimentsHandler {
	return &ExperimentsHandler{
		Config: cfg,
		Logger: logger,
		Store:  store,
	}
}

// RegisterRoutes registers the experiment API routes on the provided mux.
func (h *ExperimentsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/experiments", h.handleList)
}

func (h *ExperimentsHandler) handleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		sendError(w, h.Logger, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if h.Store == nil {
		sendError(w, h.Logger, "The experiments database is not available", http.StatusServiceUnavailable)
		return
	}

	limit := parseInt(r.URL.Query().Get("limit"), 50)

	records, err := h.Store.ListExperiments(r.Context(), limit)
	if err != nil {
		h.Logger.Errorf("Failed to list experiments: %v", err)
		sendError(w, h.Logger, fmt.Sprintf("Failed to list experiments: %v", err),
			http.StatusInternalServerError)
		return
	}

	sendJSON(w, h.Logger, Response{
		Success: true,
		Data: map[string]interface{}{
			"experiments": records,
			"count":       len(records),
		},
	}, http.StatusOK)
}
