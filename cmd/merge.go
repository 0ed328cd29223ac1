package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mvarner/replog/internal/output"
	replogsync "github.com/mvarner/replog/internal/sync"
	"github.com/mvarner/replog/internal/syncclient"
	"github.com/mvarner/replog/internal/syncconfig"
)

var mergeCmd = &cobra.Command{
	Use:     "merge",
	Short:   "Merge anonymous history into a registered account",
	GroupID: "sync",
	Long: `Moves everything recorded under this device's anonymous identity to
the account owning the supplied token, locally and on the server, then
adopts that account here.

History is moved, never renumbered. If the server already holds events
from this device under the target account, the merge is refused and
both accounts stay intact.

Examples:
  replog merge --token rl_k3qpx2m8v5t1`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		token, _ := cmd.Flags().GetString("token")

		id, err := requireIdentity()
		if err != nil {
			return err
		}
		if !id.Anonymous {
			output.Error("already linked to a registered account (user %s)", id.UserID)
			return validationErr("not an anonymous identity")
		}

		database, err := openDB()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer database.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), replogsync.DefaultTimeout)
		defer cancel()

		serverURL := syncconfig.GetServerURL()
		authClient := syncclient.New(serverURL, token)

		me, err := authClient.Me(ctx)
		if err != nil {
			if errors.Is(err, syncclient.ErrUnauthorized) {
				output.Error("token rejected by %s", serverURL)
				return validationErr("token rejected")
			}
			output.Error("reach server: %v", err)
			return networkErr(err)
		}
		if me.IsAnonymous {
			output.Error("that token belongs to an anonymous user; merge needs a registered account")
			return validationErr("target is anonymous")
		}
		if me.UserID == id.UserID {
			output.Error("that token belongs to this same user")
			return validationErr("cannot merge into self")
		}

		anonUserID := id.UserID
		anonProvisioned := id.Token != ""

		moved, err := database.RewriteUserID(ctx, anonUserID, me.UserID)
		if err != nil {
			output.Error("%v", err)
			return storageErr(err)
		}
		if _, err := database.ResetFailed(ctx, me.UserID); err != nil {
			output.Error("%v", err)
			return storageErr(err)
		}
		if moved > 0 {
			fmt.Printf("rewrote %d queued events to %s\n", moved, me.UserID)
		}

		// Push the rewritten queue under the target identity so the server
		// sees a complete device stream before the server-side move.
		co, err := replogsync.NewCoordinator(ctx, database, authClient, nil)
		if err != nil {
			output.Error("%v", err)
			return storageErr(err)
		}
		res, err := co.Sync(ctx, id.DeviceID, me.UserID)
		if err != nil {
			output.Error("%s", res.Message)
			fmt.Println(output.Subtle("  nothing merged yet; run the same merge again once the server is reachable"))
			return networkErr(err)
		}
		if !res.OK {
			output.Error("%d events were rejected during the pre-merge sync, run 'replog status'", res.Failed)
			return validationErr("pre-merge sync rejected events")
		}

		if anonProvisioned {
			mres, err := authClient.MergeUsers(ctx, anonUserID)
			switch {
			case err == nil:
				fmt.Printf("MERGED %d server events into %s\n", mres.MergedEventCount, mres.UserID)
			case errors.Is(err, syncclient.ErrConflict):
				output.Error("merge refused: the server already holds events from this device under both accounts")
				fmt.Println(output.Subtle("  both accounts are unchanged on the server"))
				return validationErr("merge conflict")
			case errors.Is(err, syncclient.ErrNotFound):
				// The anonymous user never made it to the server; there is
				// nothing server-side to move.
			default:
				output.Error("merge: %v", err)
				return networkErr(err)
			}
		} else {
			fmt.Println(output.Subtle("no server-side history under the anonymous identity"))
		}

		id.UserID = me.UserID
		id.Token = token
		id.Anonymous = false
		if err := syncconfig.SaveIdentity(id); err != nil {
			output.Error("save identity: %v", err)
			return storageErr(err)
		}

		who := me.UserID
		if me.Email != "" {
			who = me.Email
		}
		output.Success("this device now belongs to %s", who)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(mergeCmd)

	mergeCmd.Flags().String("token", "", "Token of the registered account (required)")
	mergeCmd.MarkFlagRequired("token")
}
