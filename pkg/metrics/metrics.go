// Package metrics provides Prometheus metrics for experiment and backup operations.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics
var (
	// ExperimentsCreated tracks the total number of experiments written to the database
	ExperimentsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "experiment_setup_experiments_created_total",
		Help: "The total number of experiments created",
	}, []string{"provider", "status"})

	// StoreOperationDuration measures time taken by experiment store operations
	StoreOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "experiment_setup_store_operation_duration_seconds",
		Help:    "Time taken by experiment store operations",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider", "operation"})

	// BackupFileCount tracks the number of backup files in the backup directory
	BackupFileCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "experiment_setup_backup_files",
		Help: "Number of backup files in the backup directory",
	})

	// BackupDirectorySize tracks the combined size of backup files in bytes
	BackupDirectorySize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "experiment_setup_backup_directory_size_bytes",
		Help: "Combined size of backup files in bytes",
	})

	// CatalogScans counts catalog rescans by outcome
	CatalogScans = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "experiment_setup_catalog_scans_total",
		Help: "The total number of backup catalog scans performed",
	}, []string{"status"})

	// CatalogScanDuration measures time taken to rescan the backup catalog
	CatalogScanDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "experiment_setup_catalog_scan_duration_seconds",
		Help:    "Time taken to rescan the backup catalog",
		Buckets: prometheus.DefBuckets,
	})

	// LastCatalogScanTimestamp records the time of the last successful catalog scan
	LastCatalogScanTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "experiment_setup_catalog_last_scan_timestamp",
		Help: "Timestamp of the last successful catalog scan",
	})

	// S3ArchiveCount tracks the total number of S3 archive uploads performed
	S3ArchiveCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "experiment_setup_s3_archive_total",
		Help: "The total number of backup archives uploaded to S3",
	}, []string{"status"})
)
