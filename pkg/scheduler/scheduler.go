// Package scheduler manages periodic backup catalog maintenance.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ConradKhakhria/robot-database-script/pkg/backup/catalog"
	"github.com/ConradKhakhria/robot-database-script/pkg/config"
	"github.com/ConradKhakhria/robot-database-script/pkg/storage/local"
	"github.com/ConradKhakhria/robot-database-script/pkg/storage/s3"
)

// missingRetention is how long a missing catalog entry is kept before the
// purge job removes it.
const missingRetention = 30 * 24 * time.Hour

// Scheduler runs the catalog rescan and purge jobs on cron schedules.
type Scheduler struct {
	cronScheduler *cron.Cron
	catalogStore  *catalog.Store
	localClient   *local.Client
	s3Client      *s3.Client
	cfg           *config.AppConfig
	rescanJobID   cron.EntryID
}

// NewScheduler creates a new scheduler. s3Client may be nil when
// archiving is disabled.
func NewScheduler(catalogStore *catalog.Store, localClient *local.Client, s3Client *s3.Client) *Scheduler {
	return &Scheduler{
		cronScheduler: cron.New(),
		catalogStore:  catalogStore,
		localClient:   localClient,
		s3Client:      s3Client,
		cfg:           &config.CFG,
	}
}

// SetupJobs configures the scheduled jobs.
func (s *Scheduler) SetupJobs() error {
	schedule := s.cfg.Server.RescanSchedule
	if schedule == "" {
		log.Println("No rescan schedule configured, catalog rescans disabled")
	} else {
		jobID, err := s.cronScheduler.AddFunc(schedule, s.RunRescan)
		if err != nil {
			return fmt.Errorf("failed to schedule catalog rescan with cron expression '%s': %w",
				schedule, err)
		}
		s.rescanJobID = jobID
		log.Printf("Scheduled catalog rescan with cron expression: %s", schedule)
	}

	// Purge entries that have been missing for a month, once a night.
	_, err := s.cronScheduler.AddFunc("30 3 * * *", func() {
		if removed := s.catalogStore.PurgeMissing(missingRetention); removed > 0 {
			log.Printf("Purged %d long-missing backup entries from the catalog", removed)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule catalog purge: %w", err)
	}
	log.Println("Scheduled catalog purge at 03:30 every night")

	return nil
}

// RunRescan reconciles the catalog with the backup directory once and,
// when archiving is enabled, refreshes the S3 keys on its entries.
func (s *Scheduler) RunRescan() {
	log.Println("Starting scheduled catalog rescan...")
	if _, err := s.catalogStore.Scan(s.localClient); err != nil {
		log.Printf("Error rescanning backup catalog: %v", err)
		return
	}

	if s.s3Client == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	archived, err := s.s3Client.ArchivedKeysByFileName(ctx)
	if err != nil {
		log.Printf("Error listing S3 archive during rescan: %v", err)
		return
	}
	if updated := s.catalogStore.SyncArchive(archived); updated > 0 {
		log.Printf("Linked %d cataloged backups to their S3 archive objects", updated)
	}
}

// Start begins the scheduled jobs.
func (s *Scheduler) Start() {
	s.cronScheduler.Start()
	log.Println("Catalog scheduler started successfully")
}

// Stop halts all scheduled jobs and waits for running ones to finish.
func (s *Scheduler) Stop() {
	ctx := s.cronScheduler.Stop()
	<-ctx.Done()
	log.Println("Catalog scheduler stopped")
}

// WaitForever blocks indefinitely to keep the application running
func (s *Scheduler) WaitForever() {
	blockForever := make(chan struct{})
	<-blockForever
}

// NextRescan returns the next scheduled rescan time.
func (s *Scheduler) NextRescan() (time.Time, error) {
	if s.rescanJobID == 0 {
		return time.Time{}, fmt.Errorf("no rescan job is scheduled")
	}

	entry := s.cronScheduler.Entry(s.rescanJobID)
	if entry.ID == 0 {
		return time.Time{}, fmt.Errorf("rescan job not found")
	}
	return entry.Next, nil
}
