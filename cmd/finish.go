package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mvarner/replog/internal/dateparse"
	"github.com/mvarner/replog/internal/events"
	"github.com/mvarner/replog/internal/output"
)

var finishCmd = &cobra.Command{
	Use:     "finish",
	Aliases: []string{"end", "done"},
	Short:   "Finish the open workout",
	Long: `Queues a WorkoutEnded event and closes the open workout.

Examples:
  replog finish
  replog finish --at -10m`,
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

		at := time.Now().UTC()
		if v, _ := cmd.Flags().GetString("at"); v != "" {
			parsed, err := dateparse.ParseAt(v)
			if err != nil {
				output.Error("%v", err)
				return usageErr("invalid --at value: %v", err)
			}
			at = parsed.UTC()
		}
		if at.Before(open.StartedAt) {
			output.Error("finish time %s is before the workout started", at.Format(time.RFC3339))
			return validationErr("finish time before start")
		}

		sets, err := database.ListLocalSets(ctx, open.WorkoutID)
		if err != nil {
			output.Error("%v", err)
			return storageErr(err)
		}

		rec, err := events.New(events.TypeWorkoutEnded, id.UserID, id.DeviceID, open.WorkoutID,
			events.WorkoutEnded{WorkoutID: open.WorkoutID, EndedAt: at})
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

		dur := at.Sub(open.StartedAt).Round(time.Minute)
		fmt.Printf("FINISHED workout %s (%d sets, %s)\n", open.WorkoutID, len(sets), dur)

		maybeAutoSync(ctx, database, id)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(finishCmd)

	finishCmd.Flags().String("at", "", `End time ("-10m", "2026-03-02 11:00")`)
}
