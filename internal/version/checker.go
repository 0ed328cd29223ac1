package version

import (
	"context"
	"time"
)

// CheckCached returns update info for currentVersion, answering from the
// on-disk cache while it is fresh and asking the GitHub API otherwise.
// It returns nil for development builds, when no update is available, or
// when the check could not complete.
func CheckCached(ctx context.Context, currentVersion string) *CheckResult {
	if IsDevelopmentVersion(currentVersion) {
		return nil
	}

	if cached, err := LoadCache(); err == nil && IsCacheValid(cached, currentVersion) {
		if !cached.HasUpdate {
			return nil
		}
		return &CheckResult{
			CurrentVersion: currentVersion,
			LatestVersion:  cached.LatestVersion,
			HasUpdate:      true,
		}
	}

	result := Check(ctx, currentVersion)
	if result.Error != nil {
		return nil
	}

	// Only cache completed checks, never network errors.
	_ = SaveCache(&CacheEntry{
		LatestVersion:  result.LatestVersion,
		CurrentVersion: currentVersion,
		CheckedAt:      time.Now(),
		HasUpdate:      result.HasUpdate,
	})

	if !result.HasUpdate {
		return nil
	}
	return &result
}
