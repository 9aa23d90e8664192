package api

import (
	"context"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ConradKhakhria/robot-database-script/pkg/backup/catalog"
	"github.com/ConradKhakhria/robot-database-script/pkg/config"
	"github.com/ConradKhakhria/robot-database-script/pkg/database"
)

// StatsHandler reports catalog and experiment statistics.
type StatsHandler struct {
	Config  *config.AppConfig
	Logger  *logrus.Logger
	Catalog *catalog.Store
	Store   database.Store // nil when the experiments database is unreachable
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(cfg *config.AppConfig, logger *logrus.Logger, catalogStore *catalog.Store, store database.Store) *StatsHandler {
	return &StatsHandler{
		Config:  cfg,
		Logger:  logger,
		Catalog: catalogStore,
		Store:   store,
	}
}

// RegisterRoutes registers the stats API routes on the provided mux.
func (h *StatsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/stats", h.handleStats)
}

func (h *StatsHandler) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		sendError(w, h.Logger, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := h.Catalog.GetStats()

	// Experiment counts are best-effort: the catalog stays useful even
	// when the database is down.
	if h.Store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		experiments, expErr := h.Store.CountExperiments(ctx)
		parameters, parmErr := h.Store.CountParameters(ctx)
		if expErr == nil && parmErr == nil {
			stats["experiments"] = map[string]interface{}{
				"count":          experiments,
				"parameterCount": parameters,
			}
		} else {
			h.Logger.Warnf("Failed to count experiments for stats: %v / %v", expErr, parmErr)
		}
	}

	sendJSON(w, h.Logger, Response{Success: true, Data: stats}, http.StatusOK)
}
