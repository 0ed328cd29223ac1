package version

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestIsCacheValid(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name           string
		entry          *CacheEntry
		currentVersion string
		want           bool
	}{
		{
			name:           "nil entry",
			entry:          nil,
			currentVersion: "v1.0.0",
			want:           false,
		},
		{
			name: "fresh entry for the same version",
			entry: &CacheEntry{
				LatestVersion:  "v1.1.0",
				CurrentVersion: "v1.0.0",
				CheckedAt:      now,
				HasUpdate:      true,
			},
			currentVersion: "v1.0.0",
			want:           true,
		},
		{
			name: "expired entry",
			entry: &CacheEntry{
				LatestVersion:  "v1.1.0",
				CurrentVersion: "v1.0.0",
				CheckedAt:      now.Add(-7 * time.Hour),
				HasUpdate:      true,
			},
			currentVersion: "v1.0.0",
			want:           false,
		},
		{
			name: "binary upgraded since the check ran",
			entry: &CacheEntry{
				LatestVersion:  "v1.1.0",
				CurrentVersion: "v1.0.0",
				CheckedAt:      now,
				HasUpdate:      true,
			},
			currentVersion: "v1.1.0",
			want:           false,
		},
		{
			name: "binary downgraded since the check ran",
			entry: &CacheEntry{
				LatestVersion:  "v1.1.0",
				CurrentVersion: "v1.0.0",
				CheckedAt:      now,
				HasUpdate:      true,
			},
			currentVersion: "v0.9.0",
			want:           false,
		},
		{
			name: "just under the TTL",
			entry: &CacheEntry{
				LatestVersion:  "v1.1.0",
				CurrentVersion: "v1.0.0",
				CheckedAt:      now.Add(-cacheTTL + time.Minute),
				HasUpdate:      true,
			},
			currentVersion: "v1.0.0",
			want:           true,
		},
		{
			name: "exactly at the TTL",
			entry: &CacheEntry{
				LatestVersion:  "v1.1.0",
				CurrentVersion: "v1.0.0",
				CheckedAt:      now.Add(-cacheTTL),
				HasUpdate:      true,
			},
			currentVersion: "v1.0.0",
			want:           false,
		},
		{
			name: "fresh entry with no update",
			entry: &CacheEntry{
				LatestVersion:  "v1.0.0",
				CurrentVersion: "v1.0.0",
				CheckedAt:      now,
				HasUpdate:      false,
			},
			currentVersion: "v1.0.0",
			want:           true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsCacheValid(tt.entry, tt.currentVersion)
			if got != tt.want {
				t.Errorf("IsCacheValid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSaveAndLoadCache(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	tests := []struct {
		name  string
		entry *CacheEntry
	}{
		{
			name: "update available",
			entry: &CacheEntry{
				LatestVersion:  "v1.2.3",
				CurrentVersion: "v1.0.0",
				CheckedAt:      time.Now().Round(time.Second),
				HasUpdate:      true,
			},
		},
		{
			name: "up to date",
			entry: &CacheEntry{
				LatestVersion:  "v1.0.0",
				CurrentVersion: "v1.0.0",
				CheckedAt:      time.Now().Round(time.Second),
				HasUpdate:      false,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := SaveCache(tt.entry); err != nil {
				t.Fatalf("SaveCache() error = %v", err)
			}

			path := cachePath()
			if path == "" {
				t.Fatal("cachePath() returned empty string")
			}
			if _, err := os.Stat(path); err != nil {
				t.Fatalf("cache file not created: %v", err)
			}

			loaded, err := LoadCache()
			if err != nil {
				t.Fatalf("LoadCache() error = %v", err)
			}

			if loaded.LatestVersion != tt.entry.LatestVersion {
				t.Errorf("LatestVersion = %q, want %q", loaded.LatestVersion, tt.entry.LatestVersion)
			}
			if loaded.CurrentVersion != tt.entry.CurrentVersion {
				t.Errorf("CurrentVersion = %q, want %q", loaded.CurrentVersion, tt.entry.CurrentVersion)
			}
			if loaded.HasUpdate != tt.entry.HasUpdate {
				t.Errorf("HasUpdate = %v, want %v", loaded.HasUpdate, tt.entry.HasUpdate)
			}
			if !loaded.CheckedAt.Equal(tt.entry.CheckedAt) {
				t.Errorf("CheckedAt = %v, want %v", loaded.CheckedAt, tt.entry.CheckedAt)
			}

			os.Remove(path)
		})
	}
}

func TestLoadCacheErrors(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	t.Run("missing cache file", func(t *testing.T) {
		if _, err := LoadCache(); err == nil {
			t.Error("LoadCache() should return error for nonexistent file")
		}
	})

	t.Run("corrupted cache file", func(t *testing.T) {
		path := cachePath()
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(`{invalid json}`), 0644); err != nil {
			t.Fatalf("write corrupted cache: %v", err)
		}

		if _, err := LoadCache(); err == nil {
			t.Error("LoadCache() should return error for corrupted JSON")
		}
	})
}

func TestSaveCacheCreatesDirectories(t *testing.T) {
	// HOME points below a path that does not exist yet.
	t.Setenv("HOME", filepath.Join(t.TempDir(), "nested", "home"))

	entry := &CacheEntry{
		LatestVersion:  "v1.0.0",
		CurrentVersion: "v0.9.0",
		CheckedAt:      time.Now(),
		HasUpdate:      true,
	}

	if err := SaveCache(entry); err != nil {
		t.Fatalf("SaveCache() error = %v", err)
	}
	if _, err := os.Stat(cachePath()); err != nil {
		t.Fatalf("cache file not created: %v", err)
	}
}

func TestCacheEntryJSON(t *testing.T) {
	entry := &CacheEntry{
		LatestVersion:  "v1.2.3",
		CurrentVersion: "v1.0.0",
		CheckedAt:      time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
		HasUpdate:      true,
	}

	data, err := json.Marshal(entry)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}

	var loaded CacheEntry
	if err := json.Unmarshal(data, &loaded); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}

	if loaded.LatestVersion != entry.LatestVersion ||
		loaded.CurrentVersion != entry.CurrentVersion ||
		loaded.HasUpdate != entry.HasUpdate ||
		!loaded.CheckedAt.Equal(entry.CheckedAt) {
		t.Errorf("JSON round-trip failed: original=%+v, loaded=%+v", entry, loaded)
	}
}
