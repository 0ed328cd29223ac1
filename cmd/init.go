package cmd

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mvarner/replog/internal/db"
	"github.com/mvarner/replog/internal/output"
	"github.com/mvarner/replog/internal/syncconfig"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Set up replog on this device",
	Long: `Creates the local event store and mints an anonymous identity.

Runs entirely offline. The identity is registered with the server the
first time a sync reaches it; until then everything stays local.

Examples:
  replog init
  replog init --server https://sync.example.com`,
	GroupID: "system",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		server, _ := cmd.Flags().GetString("server")

		existing, err := syncconfig.LoadIdentity()
		if err != nil {
			output.Error("read identity: %v", err)
			return storageErr(err)
		}
		if existing != nil {
			output.Warning("already initialized (user %s)", existing.UserID)
			return nil
		}

		if server != "" {
			cfg, err := syncconfig.LoadConfig()
			if err != nil {
				output.Error("read config: %v", err)
				return storageErr(err)
			}
			cfg.ServerURL = server
			if err := syncconfig.SaveConfig(cfg); err != nil {
				output.Error("write config: %v", err)
				return storageErr(err)
			}
		}

		deviceID, err := syncconfig.GenerateDeviceID()
		if err != nil {
			output.Error("generate device id: %v", err)
			return storageErr(err)
		}
		id := &syncconfig.Identity{
			UserID:    uuid.NewString(),
			DeviceID:  deviceID,
			Anonymous: true,
		}
		if err := syncconfig.SaveIdentity(id); err != nil {
			output.Error("write identity: %v", err)
			return storageErr(err)
		}

		dir, err := syncconfig.DataDir()
		if err != nil {
			output.Error("%v", err)
			return storageErr(err)
		}
		database, err := db.Initialize(dir)
		if err != nil {
			output.Error("initialize event store: %v", err)
			return storageErr(err)
		}
		defer database.Close()

		fmt.Printf("INITIALIZED %s\n", dir)
		fmt.Printf("User:   %s (anonymous)\n", id.UserID)
		fmt.Printf("Device: %s\n", id.DeviceID)
		fmt.Printf("Server: %s\n", syncconfig.GetServerURL())
		fmt.Println()
		fmt.Println(output.Subtle("Everything works offline. A token is provisioned on first sync."))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().String("server", "", "Sync server URL (stored in config)")
}
