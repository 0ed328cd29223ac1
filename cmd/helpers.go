package cmd

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/mvarner/replog/internal/db"
	"github.com/mvarner/replog/internal/output"
	"github.com/mvarner/replog/internal/syncconfig"
)

// openDB opens the local event store in the configured data directory.
func openDB() (*db.DB, error) {
	dir, err := syncconfig.DataDir()
	if err != nil {
		return nil, storageErr(err)
	}
	database, err := db.Open(dir)
	if err != nil {
		return nil, storageErr(err)
	}
	return database, nil
}

// requireIdentity loads the provisioned identity or tells the user to init.
func requireIdentity() (*syncconfig.Identity, error) {
	id, err := syncconfig.LoadIdentity()
	if err != nil {
		return nil, storageErr(err)
	}
	if id == nil {
		output.Error("not initialized, run 'replog init' first")
		return nil, usageErr("not initialized")
	}
	return id, nil
}

// newEntityID mints a short random id like "w-3fa9c2d1".
func newEntityID(prefix string) string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("read random bytes: %v", err))
	}
	return prefix + "-" + hex.EncodeToString(b)
}
