package version

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// cacheTTL is how long a completed check stays fresh. Within the TTL the
// CLI answers from disk instead of hitting the GitHub API again.
const cacheTTL = 6 * time.Hour

// CacheEntry is the on-disk record of the last completed update check.
type CacheEntry struct {
	LatestVersion  string    `json:"latest_version"`
	CurrentVersion string    `json:"current_version"`
	CheckedAt      time.Time `json:"checked_at"`
	HasUpdate      bool      `json:"has_update"`
}

// cachePath returns where the update-check cache lives. Empty string when
// no home directory can be resolved.
func cachePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".cache", "replog", "update-check.json")
}

// LoadCache reads the cached check result from disk.
func LoadCache() (*CacheEntry, error) {
	path := cachePath()
	if path == "" {
		return nil, os.ErrNotExist
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var entry CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// SaveCache writes the check result to disk, creating the cache directory
// if needed.
func SaveCache(entry *CacheEntry) error {
	path := cachePath()
	if path == "" {
		return os.ErrNotExist
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// IsCacheValid reports whether entry can answer a check for
// currentVersion. Entries expire after cacheTTL and are invalidated when
// the binary's version changed since the check ran.
func IsCacheValid(entry *CacheEntry, currentVersion string) bool {
	if entry == nil {
		return false
	}
	if entry.CurrentVersion != currentVersion {
		return false
	}
	return time.Since(entry.CheckedAt) < cacheTTL
}
