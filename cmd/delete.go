package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mvarner/replog/internal/events"
	"github.com/mvarner/replog/internal/output"
)

var deleteCmd = &cobra.Command{
	Use:     "delete <set-id>",
	Aliases: []string{"rm"},
	Short:   "Delete a set from the open workout",
	Long: `Queues a SetDeleted event. The set disappears from projections; the
log itself is append-only and keeps the original SetCompleted.

Examples:
  replog delete s-3fa9c2d1`,
	GroupID: "workout",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		setID := args[0]

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

		set, err := database.GetLocalSet(ctx, setID)
		if err != nil {
			output.Error("%v", err)
			return storageErr(err)
		}
		if set == nil {
			output.Error("unknown set %q (only sets of the open workout can be deleted)", setID)
			return validationErr("unknown set %s", setID)
		}

		rec, err := events.New(events.TypeSetDeleted, id.UserID, id.DeviceID, set.WorkoutID,
			events.SetDeleted{SetID: setID})
		if err != nil {
			output.Error("%v", err)
			return validationErr("%v", err)
		}
		if err := database.Enqueue(ctx, &rec); err != nil {
			output.Error("queue event: %v", err)
			return storageErr(err)
		}
		if err := database.DeleteLocalSet(ctx, setID); err != nil {
			output.Error("%v", err)
			return storageErr(err)
		}

		fmt.Printf("DELETED %s  %s  %d x %s\n",
			setID, set.ExerciseName, set.Reps, output.FormatWeight(set.Weight))

		maybeAutoSync(ctx, database, id)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}
