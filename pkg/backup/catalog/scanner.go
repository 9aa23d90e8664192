package catalog

import (
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/ConradKhakhria/robot-database-script/pkg/metrics"
	"github.com/ConradKhakhria/robot-database-script/pkg/storage/local"
)

// ScanReport summarizes one reconciliation of the catalog against the
// backup directory.
type ScanReport struct {
	ScanID   string        `json:"scanId"`
	Added    int           `json:"added"`
	Updated  int           `json:"updated"`
	Missing  int           `json:"missing"`
	Total    int           `json:"total"`
	Duration time.Duration `json:"duration"`
}

// Scan reconciles the catalog with the backup directory: files on disk
// are added or refreshed, and cataloged files that have disappeared are
// marked missing.
func (s *Store) Scan(client *local.Client) (ScanReport, error) {
	start := time.Now()
	report := ScanReport{ScanID: uuid.New().String()}

	files, err := client.ListBackupFiles()
	if err != nil {
		metrics.CatalogScans.WithLabelValues("error").Inc()
		return report, err
	}

	known := make(map[string]bool)
	for _, entry := range s.GetEntries() {
		known[entry.FileName] = true
	}

	onDisk := make(map[string]bool, len(files))
	for _, file := range files {
		onDisk[file.Name] = true
		if known[file.Name] {
			report.Updated++
		} else {
			report.Added++
		}
		s.Upsert(file)
	}

	for _, entry := range s.GetEntries() {
		if entry.Status == StatusPresent && !onDisk[entry.FileName] {
			if err := s.MarkMissing(entry.ID); err != nil {
				log.Printf("Warning: failed to mark %s missing: %v", entry.FileName, err)
				continue
			}
			report.Missing++
		}
	}

	s.mutex.Lock()
	s.catalog.LastScan = time.Now()
	saveErr := s.save()
	s.mutex.Unlock()
	if saveErr != nil {
		metrics.CatalogScans.WithLabelValues("error").Inc()
		return report, saveErr
	}

	if err := client.RecordStorageMetrics(); err != nil {
		log.Printf("Warning: failed to update storage metrics: %v", err)
	}

	report.Total = len(files)
	report.Duration = time.Since(start)

	metrics.CatalogScans.WithLabelValues("success").Inc()
	metrics.CatalogScanDuration.Observe(report.Duration.Seconds())
	metrics.LastCatalogScanTimestamp.Set(float64(time.Now().Unix()))

	log.Printf("Catalog scan %s finished: %d added, %d updated, %d missing (%d files total)",
		report.ScanID, report.Added, report.Updated, report.Missing, report.Total)
	return report, nil
}
