package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ConradKhakhria/robot-database-script/pkg/backup/catalog"
	"github.com/ConradKhakhria/robot-database-script/pkg/config"
	"github.com/ConradKhakhria/robot-database-script/pkg/storage/local"
	"github.com/ConradKhakhria/robot-database-script/pkg/storage/s3"
)

// ScanHandler triggers catalog rescans over the API. Only one scan runs
// at a time; concurrent triggers are rejected.
type ScanHandler struct {
	Config  *config.AppConfig
	Logger  *logrus.Logger
	Catalog *catalog.Store
	Local   *local.Client
	S3      *s3.Client // nil when archiving is disabled

	taskLock      sync.Mutex
	isScanRunning bool
	lastReport    *catalog.ScanReport
}

// NewScanHandler creates a new scan handler.
func NewScanHandler(cfg *config.AppConfig, logger *logrus.Logger, catalogStore *catalog.Store, localClient *local.Client, s3Client *s3.Client) *ScanHandler {
	return &ScanHandler{
		Config:  cfg,
		Logger:  logger,
		Catalog: catalogStore,
		Local:   localClient,
		S3:      s3Client,
	}
}

// RegisterRoutes registers the scan API routes on the provided mux.
func (h *ScanHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/scan", h.handleScan)
}

func (h *ScanHandler) handleScan(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.triggerScan(w)
	case http.MethodGet:
		h.scanStatus(w)
	default:
		sendError(w, h.Logger, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *ScanHandler) triggerScan(w http.ResponseWriter) {
	h.taskLock.Lock()
	if h.isScanRunning {
		h.taskLock.Unlock()
		sendError(w, h.Logger, "A catalog scan is already running", http.StatusConflict)
		return
	}
	h.isScanRunning = true
	h.taskLock.Unlock()

	go func() {
		report, err := h.Catalog.Scan(h.Local)
		if err == nil && h.S3 != nil {
			h.syncArchiveKeys()
		}

		h.taskLock.Lock()
		h.isScanRunning = false
		if err == nil {
			h.lastReport = &report
		}
		h.taskLock.Unlock()

		if err != nil {
			h.Logger.Errorf("Catalog scan failed: %v", err)
		}
	}()

	sendJSON(w, h.Logger, Response{
		Success: true,
		Message: "Catalog scan started",
	}, http.StatusAccepted)
}

// syncArchiveKeys refreshes the S3 object keys on cataloged entries
// after a scan so download links stay accurate.
func (h *ScanHandler) syncArchiveKeys() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	archived, err := h.S3.ArchivedKeysByFileName(ctx)
	if err != nil {
		h.Logger.Warnf("Failed to list S3 archive during scan: %v", err)
		return
	}

	if updated := h.Catalog.SyncArchive(archived); updated > 0 {
		h.Logger.Infof("Linked %d cataloged backups to their S3 archive objects", updated)
	}
}

func (h *ScanHandler) scanStatus(w http.ResponseWriter) {
	h.taskLock.Lock()
	running := h.isScanRunning
	report := h.lastReport
	h.taskLock.Unlock()

	data := map[string]interface{}{
		"running": running,
	}
	if report != nil {
		data["lastReport"] = report
	}

	sendJSON(w, h.Logger, Response{Success: true, Data: data}, http.StatusOK)
}
