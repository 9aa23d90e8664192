// Package statusserver provides the HTTP server for the backup catalog UI,
// the JSON API and the Prometheus metrics endpoint.
package statusserver

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/ConradKhakhria/robot-database-script/pkg/api"
	"github.com/ConradKhakhria/robot-database-script/pkg/backup/catalog"
	"github.com/ConradKhakhria/robot-database-script/pkg/config"
	"github.com/ConradKhakhria/robot-database-script/pkg/database"
	"github.com/ConradKhakhria/robot-database-script/pkg/pages"
	"github.com/ConradKhakhria/robot-database-script/pkg/scheduler"
	"github.com/ConradKhakhria/robot-database-script/pkg/storage/local"
	"github.com/ConradKhakhria/robot-database-script/pkg/storage/s3"
)

// Server represents the status HTTP server
type Server struct {
	httpServer  *http.Server
	scheduler   *scheduler.Scheduler
	store       database.Store
	localClient *local.Client
	s3Client    *s3.Client
}

// NewServer creates a new status server instance. The store and the S3
// client may be nil when the database or archiving are unavailable.
func NewServer(store database.Store, localClient *local.Client, s3Client *s3.Client, sched *scheduler.Scheduler) *Server {
	return &Server{
		scheduler:   sched,
		store:       store,
		localClient: localClient,
		s3Client:    s3Client,
	}
}

// Start starts the status HTTP server
func (s *Server) Start() *http.Server {
	mux := http.NewServeMux()

	// Register routes
	s.registerRoutes(mux)

	// Create HTTP server
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%s", config.CFG.Server.Port),
		Handler:      logRequestMiddleware(mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	// Start HTTP server in a goroutine
	go func() {
		log.Printf("Status server running on port %s", config.CFG.Server.Port)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	return s.httpServer
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	if s.httpServer != nil {
		return s.httpServer.Close()
	}
	return nil
}

// registerRoutes registers all HTTP routes
func (s *Server) registerRoutes(mux *http.ServeMux) {
	// Static pages
	mux.HandleFunc("/", pages.DefaultPage)
	mux.HandleFunc("/status/backups", pages.BackupStatusPage)
	mux.HandleFunc("/experiments", pages.ExperimentsPage)

	// Standard endpoints
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", s.healthCheckHandler)

	logger := logrus.New()
	if config.CFG.Debug {
		logger.SetLevel(logrus.DebugLevel)
	}

	// Catalog and experiment APIs
	backupsHandler := api.NewBackupsHandler(&config.CFG, logger, catalog.DefaultStore, s.s3Client)
	backupsHandler.RegisterRoutes(mux)

	scanHandler := api.NewScanHandler(&config.CFG, logger, catalog.DefaultStore, s.localClient, s.s3Client)
	scanHandler.RegisterRoutes(mux)

	experimentsHandler := api.NewExperimentsHandler(&config.CFG, logger, s.store)
	experimentsHandler.RegisterRoutes(mux)

	statsHandler := api.NewStatsHandler(&config.CFG, logger, catalog.DefaultStore, s.store)
	statsHandler.RegisterRoutes(mux)
}

// healthCheckHandler returns a simple health status
func (s *Server) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	health := map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	}

	if s.scheduler != nil {
		if next, err := s.scheduler.NextRescan(); err == nil {
			health["nextRescan"] = next.Format(time.RFC3339)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(health); err != nil {
		log.Printf("Error encoding health check response: %v", err)
	}
}

// logRequestMiddleware logs HTTP requests
func logRequestMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Printf("HTTP %s %s from %s", r.Method, r.URL.Path, r.RemoteAddr)
		next.ServeHTTP(w, r)
	})
}
