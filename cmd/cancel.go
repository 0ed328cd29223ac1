package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mvarner/replog/internal/events"
	"github.com/mvarner/replog/internal/output"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel",
	Short: "Abandon the open workout",
	Long: `Queues a WorkoutCancelled event. The workout keeps its events in the
log but projections exclude its sets from volume totals.`,
	GroupID: "workout",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

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

		open, err := database.GetOpenWorkout(ctx)
		if err != nil {
			output.Error("%v", err)
			return storageErr(err)
		}
		if open == nil {
			output.Error("no workout in progress")
			return validationErr("no workout in progress")
		}

		sets, err := database.ListLocalSets(ctx, open.WorkoutID)
		if err != nil {
			output.Error("%v", err)
			return storageErr(err)
		}

		rec, err := events.New(events.TypeWorkoutCancelled, id.UserID, id.DeviceID, open.WorkoutID,
			events.WorkoutCancelled{WorkoutID: open.WorkoutID})
		if err != nil {
			output.Error("%v", err)
			return validationErr("%v", err)
		}
		if err := database.Enqueue(ctx, &rec); err != nil {
			output.Error("queue event: %v", err)
			return storageErr(err)
		}
		if err := database.ClearWorkoutScratch(ctx, open.WorkoutID); err != nil {
			output.Error("%v", err)
			return storageErr(err)
		}

		fmt.Printf("CANCELLED workout %s (%d sets)\n", open.WorkoutID, len(sets))

		maybeAutoSync(ctx, database, id)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cancelCmd)
}
