package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mvarner/replog/internal/dateparse"
	"github.com/mvarner/replog/internal/events"
	"github.com/mvarner/replog/internal/output"
)

var startCmd = &cobra.Command{
	Use:     "start",
	Aliases: []string{"begin"},
	Short:   "Start a workout",
	Long: `Opens a workout on this device and queues a WorkoutStarted event.

Examples:
  replog start
  replog start --at -45m
  replog start --at "2026-03-02 10:00"`,
	GroupID: "workout",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		id, err := requireIdentity()
		if err != nil {
			return err
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
		if open != nil {
			output.Error("workout %s already in progress (started %s)",
				open.WorkoutID, output.FormatTimeAgo(open.StartedAt))
			fmt.Println(output.Subtle("  finish it with 'replog finish' or drop it with 'replog cancel'"))
			return validationErr("workout already in progress")
		}

		workoutID := newEntityID("w")
		rec, err := events.New(events.TypeWorkoutStarted, id.UserID, id.DeviceID, workoutID,
			events.WorkoutStarted{WorkoutID: workoutID, StartedAt: at})
		if err != nil {
			output.Error("%v", err)
			return validationErr("%v", err)
		}
		if err := database.Enqueue(ctx, &rec); err != nil {
			output.Error("queue event: %v", err)
			return storageErr(err)
		}
		if err := database.SetOpenWorkout(ctx, workoutID, at); err != nil {
			output.Error("%v", err)
			return storageErr(err)
		}

		fmt.Printf("STARTED workout %s\n", workoutID)
		fmt.Println(output.Subtle("  log sets with: replog log <exercise> <reps> <weight>"))

		maybeAutoSync(ctx, database, id)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(startCmd)

	startCmd.Flags().String("at", "", `Start time ("-45m", "2026-03-02 10:00", "yesterday 18:00")`)
}
