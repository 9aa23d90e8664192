// Package catalog manages tracking and persistence of backup file records.
//
// The catalog is a JSON file kept alongside the backups themselves, so it
// stays readable even when the experiments database is unreachable.
package catalog

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ConradKhakhria/robot-database-script/pkg/config"
	"github.com/ConradKhakhria/robot-database-script/pkg/storage/local"
)

// Status represents the state of a cataloged backup file.
type Status string

const (
	// StatusPresent indicates the file currently exists on disk
	StatusPresent Status = "present"
	// StatusMissing indicates the file was cataloged before but is gone
	StatusMissing Status = "missing"
)

// Entry represents the catalog record for a single backup file.
type Entry struct {
	ID           string    `json:"id"`
	FileName     string    `json:"fileName"`
	Path         string    `json:"path"`
	Stem         string    `json:"stem"`
	Size         int64     `json:"size"`
	ModTime      time.Time `json:"modTime"`
	Status       Status    `json:"status"`
	S3Key        string    `json:"s3Key,omitempty"`
	FirstSeen    time.Time `json:"firstSeen"`
	LastSeen     time.Time `json:"lastSeen"`
	MissingSince time.Time `json:"missingSince,omitempty"`
}

// catalogData is the on-disk representation of the catalog.
type catalogData struct {
	Entries     []Entry   `json:"entries"`
	LastUpdated time.Time `json:"lastUpdated"`
	LastScan    time.Time `json:"lastScan"`
	TotalSize   int64     `json:"totalSize"`
	Version     string    `json:"version"`
}

// Store manages the backup catalog file.
type Store struct {
	catalog  catalogData
	mutex    sync.RWMutex
	filepath string
}

// DefaultStore is the global catalog store instance
var DefaultStore *Store

// Initialize creates the global catalog store and loads any existing
// catalog file.
func Initialize() error {
	if DefaultStore != nil {
		return nil // Already initialized
	}

	if config.CFG.Backups.Directory == "" {
		return fmt.Errorf("backup directory is not set in configuration")
	}

	store := NewStore(config.CFG.Backups.CatalogPath())
	DefaultStore = store

	if err := store.Load(); err != nil {
		log.Printf("Warning: Could not load existing catalog, starting fresh: %v", err)
	}

	return nil
}

// NewStore creates a catalog store backed by the given file path.
func NewStore(path string) *Store {
	return &Store{
		catalog: catalogData{
			Entries:     make([]Entry, 0),
			LastUpdated: time.Now(),
			Version:     "1.0",
		},
		filepath: path,
	}
}

// Path returns the catalog file path.
func (s *Store) Path() string {
	return s.filepath
}

// Load loads the catalog from file. A missing file is not an error; an
// empty catalog is written in its place.
func (s *Store) Load() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, err := os.Stat(s.filepath); os.IsNotExist(err) {
		log.Printf("Catalog file does not exist at %s, will create new", s.filepath)
		return s.save()
	}

	data, err := os.ReadFile(s.filepath)
	if err != nil {
		return fmt.Errorf("failed to read catalog file: %w", err)
	}

	if err := json.Unmarshal(data, &s.catalog); err != nil {
		return fmt.Errorf("failed to unmarshal catalog: %w", err)
	}

	s.recalculateTotals()

	log.Printf("Loaded catalog with %d backup records", len(s.catalog.Entries))
	return nil
}

// Save persists the catalog to file.
func (s *Store) Save() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.save()
}

// save performs the actual save without locking.
func (s *Store) save() error {
	s.catalog.LastUpdated = time.Now()
	s.recalculateTotals()

	data, err := json.MarshalIndent(s.catalog, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal catalog: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.filepath), 0755); err != nil {
		return fmt.Errorf("failed to create directory for catalog: %w", err)
	}

	if err := os.WriteFile(s.filepath, data, 0644); err != nil {
		return fmt.Errorf("failed to write catalog file: %w", err)
	}

	return nil
}

// recalculateTotals updates the total size field. Only files still on
// disk are counted.
func (s *Store) recalculateTotals() {
	var totalSize int64
	for _, entry := range s.catalog.Entries {
		if entry.Status == StatusPresent {
			totalSize += entry.Size
		}
	}
	s.catalog.TotalSize = totalSize
}

// Upsert records a backup file in the catalog, creating a new entry or
// refreshing an existing one matched by file name. The updated entry is
// returned.
func (s *Store) Upsert(file local.BackupFile) Entry {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	now := time.Now()

	for i, entry := range s.catalog.Entries {
		if entry.FileName == file.Name {
			s.catalog.Entries[i].Path = file.Path
			s.catalog.Entries[i].Stem = file.Stem
			s.catalog.Entries[i].Size = file.Size
			s.catalog.Entries[i].ModTime = file.ModTime
			s.catalog.Entries[i].Status = StatusPresent
			s.catalog.Entries[i].LastSeen = now
			s.catalog.Entries[i].MissingSince = time.Time{}

			_ = s.save()
			return s.catalog.Entries[i]
		}
	}

	entry := Entry{
		ID:        uuid.New().String(),
		FileName:  file.Name,
		Path:      file.Path,
		Stem:      file.Stem,
		Size:      file.Size,
		ModTime:   file.ModTime,
		Status:    StatusPresent,
		FirstSeen: now,
		LastSeen:  now,
	}
	s.catalog.Entries = append(s.catalog.Entries, entry)

	_ = s.save()
	return entry
}

// SetS3Key records the S3 object key a backup file was archived under.
func (s *Store) SetS3Key(fileName, s3Key string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for i, entry := range s.catalog.Entries {
		if entry.FileName == fileName {
			s.catalog.Entries[i].S3Key = s3Key
			return s.save()
		}
	}

	return fmt.Errorf("backup file %s not found in catalog", fileName)
}

// SyncArchive records the S3 object keys for cataloged files found in
// the archive listing, keyed by file name. Files in the listing that
// are not cataloged are ignored. Returns the number of entries updated.
func (s *Store) SyncArchive(archived map[string]string) int {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	updated := 0
	for i, entry := range s.catalog.Entries {
		key, ok := archived[entry.FileName]
		if !ok || entry.S3Key == key {
			continue
		}
		s.catalog.Entries[i].S3Key = key
		updated++
	}

	if updated > 0 {
		_ = s.save()
	}

	return updated
}

// GetEntries returns all catalog entries.
func (s *Store) GetEntries() []Entry {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	// Return a copy to avoid concurrent modification issues
	result := make([]Entry, len(s.catalog.Entries))
	copy(result, s.catalog.Entries)

	return result
}

// GetEntriesFiltered returns entries filtered by status. An empty status
// returns everything.
func (s *Store) GetEntriesFiltered(status Status) []Entry {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var result []Entry
	for _, entry := range s.catalog.Entries {
		if status != "" && entry.Status != status {
			continue
		}
		result = append(result, entry)
	}

	return result
}

// GetEntryByID returns a specific entry by ID.
func (s *Store) GetEntryByID(id string) (Entry, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	for _, entry := range s.catalog.Entries {
		if entry.ID == id {
			return entry, true
		}
	}

	return Entry{}, false
}

// MarkMissing marks an entry as no longer present on disk.
func (s *Store) MarkMissing(id string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for i, entry := range s.catalog.Entries {
		if entry.ID == id {
			if s.catalog.Entries[i].Status != StatusMissing {
				s.catalog.Entries[i].Status = StatusMissing
				s.catalog.Entries[i].MissingSince = time.Now()
			}
			return s.save()
		}
	}

	return fmt.Errorf("backup entry with ID %s not found", id)
}

// GetStats returns statistics about the cataloged backups.
func (s *Store) GetStats() map[string]interface{} {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	statusCounts := map[string]int{
		string(StatusPresent): 0,
		string(StatusMissing): 0,
	}

	var newestBackup time.Time
	archivedCount := 0

	for _, entry := range s.catalog.Entries {
		statusCounts[string(entry.Status)]++
		if entry.S3Key != "" {
			archivedCount++
		}
		if entry.Status == StatusPresent && entry.ModTime.After(newestBackup) {
			newestBackup = entry.ModTime
		}
	}

	stats := map[string]interface{}{
		"totalCount":    len(s.catalog.Entries),
		"totalSize":     s.catalog.TotalSize,
		"statusCounts":  statusCounts,
		"archivedCount": archivedCount,
		"lastScanTime":  s.catalog.LastScan,
	}
	if !newestBackup.IsZero() {
		stats["newestBackup"] = newestBackup
	}

	return stats
}

// PurgeMissing removes entries that have been missing for longer than
// the given duration. It returns the number of entries removed.
func (s *Store) PurgeMissing(olderThan time.Duration) int {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	threshold := time.Now().Add(-olderThan)
	kept := make([]Entry, 0, len(s.catalog.Entries))
	removedCount := 0

	for _, entry := range s.catalog.Entries {
		if entry.Status != StatusMissing {
			kept = append(kept, entry)
			continue
		}

		if entry.MissingSince.After(threshold) {
			kept = append(kept, entry)
			continue
		}

		removedCount++
	}

	if removedCount > 0 {
		s.catalog.Entries = kept
		_ = s.save()
	}

	return removedCount
}
