package api

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ConradKhakhria/robot-database-script/pkg/backup/catalog"
	"github.com/ConradKhakhria/robot-database-script/pkg/config"
	"github.com/ConradKhakhria/robot-database-script/pkg/storage/s3"
)

// presignExpiry is how long generated download URLs stay valid.
const presignExpiry = 15 * time.Minute

// BackupsHandler handles backup catalog API endpoints.
type BackupsHandler struct {
	Config  *config.AppConfig
	Logger  *logrus.Logger
	Catalog *catalog.Store
	S3      *s3.Client // nil when archiving is disabled
}

// NewBackupsHandler creates a new backups handler.
func NewBackupsHandler(cfg *config.AppConfig, logger *logrus.Logger, catalogStore *catalog.Store, s3Client *s3.Client) *BackupsHandler {
	return &BackupsHandler{
		Config:  cfg,
		Logger:  logger,
		Catalog: catalogStore,
		S3:      s3Client,
	}
}

// RegisterRoutes registers the backup API routes on the provided mux.
func (h *BackupsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/backups", h.handleList)
	mux.HandleFunc("/api/v1/backups/download", h.handleDownload)
	mux.HandleFunc("/api/v1/backups/archive", h.handleArchive)
}

// handleList returns catalog entries filtered, sorted and paginated by
// query parameters.
func (h *BackupsHandler) handleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		sendError(w, h.Logger, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	query := r.URL.Query()

	entries := h.Catalog.GetEntriesFiltered(catalog.Status(query.Get("status")))

	if search := query.Get("search"); search != "" {
		var filtered []catalog.Entry
		for _, entry := range entries {
			if strings.Contains(entry.FileName, search) || strings.Contains(entry.Stem, search) {
				filtered = append(filtered, entry)
			}
		}
		entries = filtered
	}

	if startDate := query.Get("startDate"); startDate != "" {
		if t, err := time.Parse("2006-01-02", startDate); err == nil {
			var filtered []catalog.Entry
			for _, entry := range entries {
				if !entry.ModTime.Before(t) {
					filtered = append(filtered, entry)
				}
			}
			entries = filtered
		}
	}

	if endDate := query.Get("endDate"); endDate != "" {
		if t, err := time.Parse("2006-01-02", endDate); err == nil {
			// Add a day so the whole end date is included.
			endTime := t.AddDate(0, 0, 1)
			var filtered []catalog.Entry
			for _, entry := range entries {
				if entry.ModTime.Before(endTime) {
					filtered = append(filtered, entry)
				}
			}
			entries = filtered
		}
	}

	sortEntries(entries, query.Get("sortBy"), query.Get("sortOrder"))

	page := parseInt(query.Get("page"), 1)
	pageSize := parseInt(query.Get("pageSize"), 50)

	total := len(entries)
	totalPages := (total + pageSize - 1) / pageSize
	if totalPages == 0 {
		totalPages = 1
	}

	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	sendJSON(w, h.Logger, Response{
		Success: true,
		Data: map[string]interface{}{
			"backups":    entries[start:end],
			"total":      total,
			"page":       page,
			"pageSize":   pageSize,
			"totalPages": totalPages,
		},
	}, http.StatusOK)
}

// sortEntries orders entries by the requested column. The default is
// newest first.
func sortEntries(entries []catalog.Entry, sortBy, sortOrder string) {
	less := func(i, j int) bool { return entries[i].ModTime.Before(entries[j].ModTime) }

	switch sortBy {
	case "name":
		less = func(i, j int) bool { return entries[i].FileName < entries[j].FileName }
	case "size":
		less = func(i, j int) bool { return entries[i].Size < entries[j].Size }
	}

	if sortOrder == "asc" {
		sort.SliceStable(entries, less)
		return
	}
	sort.SliceStable(entries, func(i, j int) bool { return less(j, i) })
}

// handleDownload serves a cataloged backup file. Present entries are
// served straight from disk; entries that are gone locally but archived
// get a presigned S3 URL instead.
func (h *BackupsHandler) handleDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		sendError(w, h.Logger, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		sendError(w, h.Logger, "Missing required parameter: id", http.StatusBadRequest)
		return
	}

	entry, found := h.Catalog.GetEntryByID(id)
	if !found {
		sendError(w, h.Logger, fmt.Sprintf("No backup with ID %s", id), http.StatusNotFound)
		return
	}

	if entry.Status == catalog.StatusPresent {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", entry.FileName))
		http.ServeFile(w, r, entry.Path)
		return
	}

	if entry.S3Key != "" && h.S3 != nil {
		url, err := h.S3.GeneratePresignedURL(entry.S3Key, presignExpiry)
		if err != nil {
			h.Logger.Errorf("Failed to generate presigned URL for %s: %v", entry.S3Key, err)
			sendError(w, h.Logger, "Failed to generate download URL", http.StatusInternalServerError)
			return
		}

		sendJSON(w, h.Logger, Response{
			Success: true,
			Data: map[string]interface{}{
				"url":       url,
				"expiresIn": presignExpiry.String(),
			},
		}, http.StatusOK)
		return
	}

	sendError(w, h.Logger, fmt.Sprintf("Backup file %s is no longer available", entry.FileName),
		http.StatusGone)
}

// handleArchive uploads a cataloged backup file to the S3 archive and
// records the object key on its entry.
func (h *BackupsHandler) handleArchive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		sendError(w, h.Logger, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		sendError(w, h.Logger, "Missing required parameter: id", http.StatusBadRequest)
		return
	}

	entry, found := h.Catalog.GetEntryByID(id)
	if !found {
		sendError(w, h.Logger, fmt.Sprintf("No backup with ID %s", id), http.StatusNotFound)
		return
	}

	if entry.S3Key != "" {
		sendJSON(w, h.Logger, Response{
			Success: true,
			Message: "Backup is already archived",
			Data:    map[string]interface{}{"s3Key": entry.S3Key},
		}, http.StatusOK)
		return
	}

	if entry.Status != catalog.StatusPresent {
		sendError(w, h.Logger, fmt.Sprintf("Backup file %s is no longer available", entry.FileName),
			http.StatusGone)
		return
	}

	if h.S3 == nil {
		sendError(w, h.Logger, "S3 archiving is not enabled", http.StatusServiceUnavailable)
		return
	}

	objectKey, err := h.S3.ArchiveBackup(r.Context(), entry.Path, entry.FileName)
	if err != nil {
		h.Logger.Errorf("Failed to archive %s: %v", entry.FileName, err)
		sendError(w, h.Logger, "Failed to archive backup", http.StatusInternalServerError)
		return
	}

	if err := h.Catalog.SetS3Key(entry.FileName, objectKey); err != nil {
		h.Logger.Warnf("Archived %s but could not record its S3 key: %v", entry.FileName, err)
	}

	sendJSON(w, h.Logger, Response{
		Success: true,
		Message: fmt.Sprintf("Archived %s", entry.FileName),
		Data:    map[string]interface{}{"s3Key": objectKey},
	}, http.StatusOK)
}
