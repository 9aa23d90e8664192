package catalog

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/ConradKhakhria/robot-database-script/pkg/storage/local"
)

// BenchmarkGetEntries benchmarks retrieving all catalog entries
func BenchmarkGetEntries(b *testing.B) {
	sizes := []int{100, 1000, 10000}

	for _, size := range sizes {
		b.Run(fmt.Sprintf("Size%d", size), func(b *testing.B) {
			store := createBenchmarkStore(b, size)

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				entries := store.GetEntries()
				_ = entries
			}
		})
	}
}

// BenchmarkGetEntriesFiltered benchmarks filtered queries
func BenchmarkGetEntriesFiltered(b *testing.B) {
	sizes := []int{100, 1000, 10000}

	for _, size := range sizes {
		b.Run(fmt.Sprintf("Size%d", size), func(b *testing.B) {
			store := createBenchmarkStore(b, size)

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				entries := store.GetEntriesFiltered(StatusMissing)
				_ = entries
			}
		})
	}
}

// BenchmarkGetStats benchmarks statistics calculation
func BenchmarkGetStats(b *testing.B) {
	sizes := []int{100, 1000, 10000}

	for _, size := range sizes {
		b.Run(fmt.Sprintf("Size%d", size), func(b *testing.B) {
			store := createBenchmarkStore(b, size)

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				stats := store.GetStats()
				_ = stats
			}
		})
	}
}

// BenchmarkConcurrentAccess benchmarks mixed reads and writes. Upsert
// persists the catalog file on every call, so this also covers the
// save path.
func BenchmarkConcurrentAccess(b *testing.B) {
	store := createBenchmarkStore(b, 1000)

	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			if i%2 == 0 {
				entries := store.GetEntries()
				_ = entries
			} else {
				name := fmt.Sprintf("bench_%d.bak", i%1000)
				store.Upsert(local.BackupFile{
					Path:    "/backups/" + name,
					Name:    name,
					Stem:    fmt.Sprintf("bench_%d", i%1000),
					Size:    4096,
					ModTime: time.Now(),
				})
			}
			i++
		}
	})
}

func createBenchmarkStore(b *testing.B, size int) *Store {
	store := &Store{
		filepath: filepath.Join(b.TempDir(), "catalog.json"),
		catalog: catalogData{
			Entries:     make([]Entry, 0, size),
			LastUpdated: time.Now(),
			Version:     "1.0",
		},
	}

	baseTime := time.Now().Add(-30 * 24 * time.Hour)

	for i := 0; i < size; i++ {
		entry := Entry{
			ID:        fmt.Sprintf("bench-id-%d", i),
			FileName:  fmt.Sprintf("bench_%d.bak", i),
			Path:      fmt.Sprintf("/backups/bench_%d.bak", i),
			Stem:      fmt.Sprintf("bench_%d", i),
			Size:      int64(1024 * (i%100 + 1)),
			ModTime:   baseTime.Add(time.Duration(i) * time.Minute),
			Status:    StatusPresent,
			FirstSeen: baseTime,
			LastSeen:  baseTime.Add(time.Duration(i) * time.Minute),
		}

		if i%10 == 0 {
			entry.Status = StatusMissing
			entry.MissingSince = baseTime.Add(time.Duration(i) * time.Minute)
		}
		if i%2 == 0 {
			entry.S3Key = fmt.Sprintf("backups/bench_%d.bak", i)
		}

		store.catalog.Entries = append(store.catalog.Entries, entry)
	}

	store.recalculateTotals()
	return store
}
