package cmd

import (
	"context"
	"log/slog"
	"time"

	"github.com/mvarner/replog/internal/db"
	replogsync "github.com/mvarner/replog/internal/sync"
	"github.com/mvarner/replog/internal/syncclient"
	"github.com/mvarner/replog/internal/syncconfig"
)

// autoSyncTimeout bounds the best-effort push after a mutating command.
const autoSyncTimeout = 5 * time.Second

// maybeAutoSync pushes pending events after an event-producing command.
// Best effort: failures are logged at debug and never surface; the next
// explicit 'replog sync' picks the events up. Disabled via
// REPLOG_AUTO_SYNC=0 or auto_sync in config.json.
func maybeAutoSync(ctx context.Context, database *db.DB, id *syncconfig.Identity) {
	if !syncconfig.GetAutoSync() {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, autoSyncTimeout)
	defer cancel()

	token, err := ensureProvisioned(ctx, id)
	if err != nil {
		slog.Debug("autosync: provision", "err", err)
		return
	}

	client := syncclient.New(syncconfig.GetServerURL(), token)
	client.HTTP.Timeout = autoSyncTimeout

	co, err := replogsync.NewCoordinator(ctx, database, client, nil)
	if err != nil {
		slog.Debug("autosync: coordinator", "err", err)
		return
	}
	if _, err := co.Sync(ctx, id.DeviceID, id.UserID); err != nil {
		slog.Debug("autosync: push", "err", err)
	}
}
