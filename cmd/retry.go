package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mvarner/replog/internal/output"
	replogsync "github.com/mvarner/replog/internal/sync"
)

var retryCmd = &cobra.Command{
	Use:     "retry",
	Short:   "Requeue failed events and sync",
	GroupID: "sync",
	Long: `Returns events parked at failed to pending with a fresh retry budget,
then pushes them.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
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

		ctx, cancel := context.WithTimeout(cmd.Context(), replogsync.DefaultTimeout)
		defer cancel()

		n, err := database.ResetFailed(ctx, id.UserID)
		if err != nil {
			output.Error("%v", err)
			return storageErr(err)
		}
		if n == 0 {
			fmt.Println("no failed events")
			return nil
		}
		fmt.Printf("REQUEUED %d failed events\n", n)

		res, err := runSync(ctx, database, id)
		if err != nil {
			msg := res.Message
			if msg == "" {
				msg = err.Error()
			}
			output.Error("%s", msg)
			return err
		}
		if res.OK {
			output.Success("%s", res.Message)
		} else {
			output.Warning("%s", res.Message)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(retryCmd)
}
