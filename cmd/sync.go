package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mvarner/replog/internal/db"
	"github.com/mvarner/replog/internal/output"
	replogsync "github.com/mvarner/replog/internal/sync"
	"github.com/mvarner/replog/internal/syncclient"
	"github.com/mvarner/replog/internal/syncconfig"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	Short:   "Push queued events to the sync server",
	GroupID: "sync",
	Long: `Pushes pending events and records the server's acknowledgment cursor.

The first successful contact registers the anonymous identity minted by
'replog init' and stores its token.

Examples:
  replog sync
  replog sync --timeout 10s
  replog sync --json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		timeout, _ := cmd.Flags().GetDuration("timeout")
		asJSON, _ := cmd.Flags().GetBool("json")

		id, err := requireIdentity()
		if err != nil {
			return err
		}

		database, err := openDB()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer database.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		res, err := runSync(ctx, database, id)
		if err != nil {
			msg := res.Message
			if msg == "" {
				msg = err.Error()
			}
			if asJSON {
				output.JSONError(errorCode(err), msg)
			} else {
				output.Error("%s", msg)
			}
			return err
		}

		if asJSON {
			return output.JSON(res)
		}
		if res.OK {
			output.Success("%s", res.Message)
		} else {
			output.Warning("%s", res.Message)
		}
		if res.Pending > 0 {
			fmt.Println(output.Subtle(fmt.Sprintf("  %d events still queued", res.Pending)))
		}
		return nil
	},
}

// ensureProvisioned returns a usable bearer token, registering the
// anonymous identity minted at init on first contact with the server.
func ensureProvisioned(ctx context.Context, id *syncconfig.Identity) (string, error) {
	if tok := syncconfig.GetToken(); tok != "" {
		return tok, nil
	}
	client := syncclient.New(syncconfig.GetServerURL(), "")
	resp, err := client.CreateAnonymousUser(ctx, id.UserID)
	if err != nil {
		return "", fmt.Errorf("provision anonymous user: %w", err)
	}
	id.UserID = resp.UserID
	id.Token = resp.Token
	id.Anonymous = resp.IsAnonymous
	if err := syncconfig.SaveIdentity(id); err != nil {
		return "", fmt.Errorf("save identity: %w", err)
	}
	return resp.Token, nil
}

// runSync performs one foreground push for the identity. The returned
// error carries an exit code; Result.Message is printable either way.
func runSync(ctx context.Context, database *db.DB, id *syncconfig.Identity) (replogsync.Result, error) {
	token, err := ensureProvisioned(ctx, id)
	if err != nil {
		return replogsync.Result{}, networkErr(err)
	}

	client := syncclient.New(syncconfig.GetServerURL(), token)
	co, err := replogsync.NewCoordinator(ctx, database, client, nil)
	if err != nil {
		return replogsync.Result{}, storageErr(err)
	}
	res, err := co.Sync(ctx, id.DeviceID, id.UserID)
	if err != nil {
		return res, networkErr(err)
	}
	return res, nil
}

func init() {
	rootCmd.AddCommand(syncCmd)

	syncCmd.Flags().Duration("timeout", replogsync.DefaultTimeout, "Overall deadline for the attempt")
	syncCmd.Flags().Bool("json", false, "Emit the result as JSON")
}
