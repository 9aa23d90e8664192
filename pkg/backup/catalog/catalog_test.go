package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ConradKhakhria/robot-database-script/pkg/config"
	"github.com/ConradKhakhria/robot-database-script/pkg/storage/local"
)

func backupFile(name string, size int64, modTime time.Time) local.BackupFile {
	return local.BackupFile{
		Path:    filepath.Join("/srv/backups", name),
		Name:    name,
		Stem:    name[:len(name)-len(filepath.Ext(name))],
		Size:    size,
		ModTime: modTime,
	}
}

func TestInitializeCreatesCatalogFile(t *testing.T) {
	tmpDir := t.TempDir()
	config.CFG.Backups.Directory = tmpDir
	config.CFG.Backups.CatalogFile = "catalog.json"

	DefaultStore = nil
	require.NoError(t, Initialize())
	require.NotNil(t, DefaultStore)

	assert.FileExists(t, filepath.Join(tmpDir, "catalog.json"))
	DefaultStore = nil
}

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	store := NewStore(filepath.Join(tmpDir, "catalog.json"))

	modTime := time.Date(2023, 6, 14, 14, 32, 0, 0, time.UTC)
	entry1 := store.Upsert(backupFile("growth_1.bak", 1024, modTime))
	entry2 := store.Upsert(backupFile("growth_2.bak", 2048, modTime.Add(time.Hour)))
	require.NoError(t, store.MarkMissing(entry2.ID))
	require.NoError(t, store.Save())

	reloaded := NewStore(store.Path())
	require.NoError(t, reloaded.Load())

	entries := reloaded.GetEntries()
	require.Len(t, entries, 2)
	assert.Equal(t, entry1.ID, entries[0].ID)
	assert.Equal(t, StatusPresent, entries[0].Status)
	assert.Equal(t, StatusMissing, entries[1].Status)
	assert.False(t, entries[1].MissingSince.IsZero())
}

func TestUpsertRefreshesExistingEntry(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "catalog.json"))

	modTime := time.Date(2023, 6, 14, 14, 32, 0, 0, time.UTC)
	created := store.Upsert(backupFile("growth_1.bak", 1024, modTime))
	require.NoError(t, store.MarkMissing(created.ID))

	refreshed := store.Upsert(backupFile("growth_1.bak", 4096, modTime.Add(time.Hour)))

	assert.Equal(t, created.ID, refreshed.ID)
	assert.Equal(t, int64(4096), refreshed.Size)
	assert.Equal(t, StatusPresent, refreshed.Status)
	assert.True(t, refreshed.MissingSince.IsZero())
	assert.Len(t, store.GetEntries(), 1)
}

func TestSetS3Key(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "catalog.json"))
	store.Upsert(backupFile("growth_1.bak", 1024, time.Now()))

	require.NoError(t, store.SetS3Key("growth_1.bak", "experiment-backups/growth_1.bak"))
	entries := store.GetEntries()
	assert.Equal(t, "experiment-backups/growth_1.bak", entries[0].S3Key)

	err := store.SetS3Key("nope.bak", "key")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSyncArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.json")
	store := NewStore(path)
	store.Upsert(backupFile("growth_1.bak", 1024, time.Now()))
	store.Upsert(backupFile("growth_2.bak", 2048, time.Now()))

	updated := store.SyncArchive(map[string]string{
		"growth_1.bak":  "experiment-backups/growth_1.bak",
		"unrelated.bak": "experiment-backups/unrelated.bak",
	})
	assert.Equal(t, 1, updated)

	entries := store.GetEntries()
	require.Len(t, entries, 2)
	assert.Equal(t, "experiment-backups/growth_1.bak", entries[0].S3Key)
	assert.Empty(t, entries[1].S3Key)

	// A second sync with the same listing changes nothing.
	assert.Equal(t, 0, store.SyncArchive(map[string]string{
		"growth_1.bak": "experiment-backups/growth_1.bak",
	}))

	// The recorded keys survive a reload.
	reloaded := NewStore(path)
	require.NoError(t, reloaded.Load())
	entries = reloaded.GetEntries()
	require.Len(t, entries, 2)
	assert.Equal(t, "experiment-backups/growth_1.bak", entries[0].S3Key)
}

func TestLoadCorruptedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupted.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"entries": [{"id": "test", "status": "broken`), 0644))

	store := NewStore(path)
	err := store.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal")
}

func TestLoadNonExistentFileCreatesEmptyCatalog(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "new_catalog.json"))

	require.NoError(t, store.Load())
	assert.FileExists(t, store.Path())

	data, err := os.ReadFile(store.Path())
	require.NoError(t, err)

	var loaded catalogData
	require.NoError(t, json.Unmarshal(data, &loaded))
	assert.Equal(t, 0, len(loaded.Entries))
	assert.Equal(t, "1.0", loaded.Version)
}

func TestConcurrentUpserts(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "concurrent.json"))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			store.Upsert(backupFile(fmt.Sprintf("backup_%d.bak", idx), int64(idx)*1024, time.Now()))
		}(i)
	}
	wg.Wait()

	assert.Len(t, store.GetEntries(), 10)

	reloaded := NewStore(store.Path())
	require.NoError(t, reloaded.Load())
	assert.Len(t, reloaded.GetEntries(), 10)
}

func TestGetStatsAndTotals(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "stats.json"))

	modTime := time.Date(2023, 6, 14, 14, 32, 0, 0, time.UTC)
	store.Upsert(backupFile("a.bak", 1024, modTime))
	store.Upsert(backupFile("b.bak", 2048, modTime.Add(time.Hour)))
	gone := store.Upsert(backupFile("c.bak", 4096, modTime.Add(2*time.Hour)))
	require.NoError(t, store.MarkMissing(gone.ID))
	require.NoError(t, store.SetS3Key("a.bak", "experiment-backups/a.bak"))

	stats := store.GetStats()
	assert.Equal(t, 3, stats["totalCount"])
	assert.Equal(t, int64(1024+2048), stats["totalSize"])
	assert.Equal(t, 1, stats["archivedCount"])

	statusCounts := stats["statusCounts"].(map[string]int)
	assert.Equal(t, 2, statusCounts["present"])
	assert.Equal(t, 1, statusCounts["missing"])
}

func TestPurgeMissing(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "purge.json"))

	kept := store.Upsert(backupFile("kept.bak", 1024, time.Now()))
	gone := store.Upsert(backupFile("gone.bak", 1024, time.Now()))
	require.NoError(t, store.MarkMissing(gone.ID))

	// Entry only just went missing, so nothing is old enough to purge.
	assert.Equal(t, 0, store.PurgeMissing(time.Hour))
	assert.Len(t, store.GetEntries(), 2)

	// With a zero retention window the missing entry goes away.
	assert.Equal(t, 1, store.PurgeMissing(0))

	entries := store.GetEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, kept.ID, entries[0].ID)
}

func TestScanReconcilesCatalog(t *testing.T) {
	tmpDir := t.TempDir()
	config.CFG.Backups.Directory = tmpDir
	client, err := local.NewClient()
	require.NoError(t, err)

	write := func(name string) string {
		path := filepath.Join(tmpDir, name)
		require.NoError(t, os.WriteFile(path, []byte("backup data"), 0644))
		return path
	}
	first := write("growth_1.bak")
	write("growth_2.bak")

	store := NewStore(filepath.Join(tmpDir, "catalog.json"))

	report, err := store.Scan(client)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Added)
	assert.Equal(t, 0, report.Updated)
	assert.Equal(t, 0, report.Missing)
	assert.Equal(t, 2, report.Total)
	assert.NotEmpty(t, report.ScanID)

	// Remove one file and add another; the rescan should notice both.
	require.NoError(t, os.Remove(first))
	write("growth_3.bak")

	report, err = store.Scan(client)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Added)
	assert.Equal(t, 1, report.Updated)
	assert.Equal(t, 1, report.Missing)

	missing := store.GetEntriesFiltered(StatusMissing)
	require.Len(t, missing, 1)
	assert.Equal(t, "growth_1.bak", missing[0].FileName)
}
