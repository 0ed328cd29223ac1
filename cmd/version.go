package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mvarner/replog/internal/output"
	"github.com/mvarner/replog/internal/version"
)

type versionReport struct {
	Version       string `json:"version"`
	LatestVersion string `json:"latest_version,omitempty"`
	UpdateCommand string `json:"update_command,omitempty"`
	HasUpdate     bool   `json:"has_update"`
}

var versionCmd = &cobra.Command{
	Use:     "version",
	Short:   "Print the replog version",
	GroupID: "system",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		check, _ := cmd.Flags().GetBool("check")
		asJSON, _ := cmd.Flags().GetBool("json")

		rep := versionReport{Version: appVersion}

		if check {
			if res := version.CheckCached(cmd.Context(), appVersion); res != nil {
				rep.LatestVersion = res.LatestVersion
				rep.UpdateCommand = version.UpdateCommand(res.LatestVersion)
				rep.HasUpdate = true
			}
		}

		if asJSON {
			return output.JSON(rep)
		}

		fmt.Printf("replog %s\n", appVersion)
		if !check {
			return nil
		}
		switch {
		case rep.HasUpdate:
			output.Warning("update available: %s", rep.LatestVersion)
			if rep.UpdateCommand != "" {
				fmt.Println(output.Subtle("  " + rep.UpdateCommand))
			}
		case version.IsDevelopmentVersion(appVersion):
			fmt.Println(output.Subtle("development build, update check skipped"))
		default:
			fmt.Println(output.Subtle("up to date"))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)

	versionCmd.Flags().Bool("check", false, "Check GitHub for a newer release")
	versionCmd.Flags().Bool("json", false, "Emit version info as JSON")
}
