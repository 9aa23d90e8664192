// Package local manages the local backup directory for database backup files.
package local

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ConradKhakhria/robot-database-script/pkg/config"
	"github.com/ConradKhakhria/robot-database-script/pkg/metrics"
)

// BackupExtension is the file extension backup files carry.
const BackupExtension = ".bak"

// BackupFile describes one backup file on disk.
type BackupFile struct {
	// Path is the absolute path to the file
	Path string
	// Name is the base name including the extension
	Name string
	// Stem is the base name without the extension
	Stem string
	// Size is the file size in bytes
	Size int64
	// ModTime is the file modification time
	ModTime time.Time
}

// Client represents a local backup directory client
type Client struct {
	cfg *config.AppConfig
}

// NewClient creates a new local storage client
func NewClient() (*Client, error) {
	if config.CFG.Backups.Directory == "" {
		return nil, fmt.Errorf("backup directory is not set in configuration")
	}

	return &Client{
		cfg: &config.CFG,
	}, nil
}

// Directory returns the configured backup directory.
func (c *Client) Directory() string {
	return c.cfg.Backups.Directory
}

// EnsureDirectory ensures the backup directory exists.
func (c *Client) EnsureDirectory() error {
	if err := os.MkdirAll(c.cfg.Backups.Directory, 0755); err != nil {
		return fmt.Errorf("failed to create backup directory %s: %w", c.cfg.Backups.Directory, err)
	}
	return nil
}

// Resolve turns a backup file name into an absolute path. Relative names
// are taken relative to the backup directory, not the working directory.
func (c *Client) Resolve(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.cfg.Backups.Directory, name)
}

// Stat returns the backup file at path, or an error if it does not exist
// or is not a regular file.
func (c *Client) Stat(path string) (BackupFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return BackupFile{}, err
	}
	if info.IsDir() {
		return BackupFile{}, fmt.Errorf("%s is a directory, not a backup file", path)
	}
	return fileInfoToBackup(path, info), nil
}

// ListBackupFiles returns all backup files in the backup directory,
// oldest first.
func (c *Client) ListBackupFiles() ([]BackupFile, error) {
	entries, err := os.ReadDir(c.cfg.Backups.Directory)
	if err != nil {
		return nil, fmt.Errorf("failed to read backup directory %s: %w", c.cfg.Backups.Directory, err)
	}

	var files []BackupFile
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), BackupExtension) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, fileInfoToBackup(filepath.Join(c.cfg.Backups.Directory, entry.Name()), info))
	}

	sort.Slice(files, func(i, j int) bool {
		if files[i].ModTime.Equal(files[j].ModTime) {
			return files[i].Name < files[j].Name
		}
		return files[i].ModTime.Before(files[j].ModTime)
	})

	return files, nil
}

// RecordStorageMetrics updates the backup file count and size gauges.
func (c *Client) RecordStorageMetrics() error {
	files, err := c.ListBackupFiles()
	if err != nil {
		return err
	}

	var totalSize int64
	for _, file := range files {
		totalSize += file.Size
	}

	metrics.BackupFileCount.Set(float64(len(files)))
	metrics.BackupDirectorySize.Set(float64(totalSize))
	return nil
}

func fileInfoToBackup(path string, info os.FileInfo) BackupFile {
	name := info.Name()
	return BackupFile{
		Path:    path,
		Name:    name,
		Stem:    strings.TrimSuffix(name, filepath.Ext(name)),
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}
}
