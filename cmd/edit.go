package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mvarner/replog/internal/events"
	"github.com/mvarner/replog/internal/output"
)

var editCmd = &cobra.Command{
	Use:   "edit <set-id>",
	Short: "Correct a set in the open workout",
	Long: `Queues a SetUpdated event carrying only the changed fields.

Examples:
  replog edit s-3fa9c2d1 --reps 6
  replog edit s-3fa9c2d1 --reps 6 --weight 102.5`,
	GroupID: "workout",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		setID := args[0]

		var repsPtr *int
		var weightPtr *float64
		if cmd.Flags().Changed("reps") {
			v, _ := cmd.Flags().GetInt("reps")
			if v < 1 {
				output.Error("reps must be at least 1")
				return validationErr("reps must be at least 1")
			}
			repsPtr = &v
		}
		if cmd.Flags().Changed("weight") {
			v, _ := cmd.Flags().GetFloat64("weight")
			if v < 0 {
				output.Error("weight cannot be negative")
				return validationErr("weight cannot be negative")
			}
			weightPtr = &v
		}
		if repsPtr == nil && weightPtr == nil {
			output.Error("nothing to change, pass --reps and/or --weight")
			return usageErr("nothing to change")
		}

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
			output.Error("unknown set %q (only sets of the open workout can be edited)", setID)
			return validationErr("unknown set %s", setID)
		}

		rec, err := events.New(events.TypeSetUpdated, id.UserID, id.DeviceID, set.WorkoutID,
			events.SetUpdated{SetID: setID, Reps: repsPtr, Weight: weightPtr})
		if err != nil {
			output.Error("%v", err)
			return validationErr("%v", err)
		}
		if err := database.Enqueue(ctx, &rec); err != nil {
			output.Error("queue event: %v", err)
			return storageErr(err)
		}
		if err := database.ApplyLocalSetUpdate(ctx, setID, repsPtr, weightPtr); err != nil {
			output.Error("%v", err)
			return storageErr(err)
		}

		if repsPtr != nil {
			set.Reps = *repsPtr
		}
		if weightPtr != nil {
			set.Weight = *weightPtr
		}
		fmt.Printf("UPDATED %s  %s  %d x %s\n",
			setID, set.ExerciseName, set.Reps, output.FormatWeight(set.Weight))

		maybeAutoSync(ctx, database, id)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(editCmd)

	editCmd.Flags().Int("reps", 0, "New rep count")
	editCmd.Flags().Float64("weight", 0, "New weight")
}
