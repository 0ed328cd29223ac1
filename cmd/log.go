package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mvarner/replog/internal/dateparse"
	"github.com/mvarner/replog/internal/db"
	"github.com/mvarner/replog/internal/events"
	"github.com/mvarner/replog/internal/input"
	"github.com/mvarner/replog/internal/output"
	"github.com/mvarner/replog/internal/suggest"
)

var logCmd = &cobra.Command{
	Use:     "log <exercise> <reps> <weight>",
	Aliases: []string{"l"},
	Short:   "Log a set in the open workout",
	Long: `Records one performed set. The first set of an exercise in a workout
also queues an ExerciseAdded event.

A single @file or - argument logs sets in bulk, one "exercise reps weight"
line each. Blank lines and #-comments are skipped.

Examples:
  replog log "bench press" 5 100
  replog log squat 8 120.5 --at -5m
  replog log @monday.txt
  cat sets.txt | replog log -`,
	GroupID: "workout",
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 && input.IsBulkSource(args[0]) {
			return nil
		}
		return cobra.ExactArgs(3)(cmd, args)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if len(args) == 1 {
			return runLogBulk(cmd, args[0])
		}

		exercise := args[0]
		reps, err := strconv.Atoi(args[1])
		if err != nil {
			output.Error("reps must be a whole number, got %q", args[1])
			return usageErr("invalid reps %q", args[1])
		}
		weight, err := strconv.ParseFloat(args[2], 64)
		if err != nil {
			output.Error("weight must be a number, got %q", args[2])
			return usageErr("invalid weight %q", args[2])
		}
		if err := checkSetValues(reps, weight, exercise); err != nil {
			return err
		}

		completedAt, err := completionTime(cmd)
		if err != nil {
			return err
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

		open, err := database.GetOpenWorkout(ctx)
		if err != nil {
			output.Error("%v", err)
			return storageErr(err)
		}
		if open == nil {
			output.Error("no workout in progress, run 'replog start' first")
			return validationErr("no workout in progress")
		}

		exerciseID, added, err := database.EnsureExercise(ctx, open.WorkoutID, exercise)
		if err != nil {
			output.Error("%v", err)
			return storageErr(err)
		}

		setID := newEntityID("s")
		recs := make([]*events.Record, 0, 2)
		if added {
			rec, err := events.New(events.TypeExerciseAdded, id.UserID, id.DeviceID, open.WorkoutID,
				events.ExerciseAdded{
					WorkoutID:    open.WorkoutID,
					ExerciseID:   exerciseID,
					ExerciseName: exercise,
				})
			if err != nil {
				output.Error("%v", err)
				return validationErr("%v", err)
			}
			recs = append(recs, &rec)
		}
		setRec, err := events.New(events.TypeSetCompleted, id.UserID, id.DeviceID, open.WorkoutID,
			events.SetCompleted{
				WorkoutID:   open.WorkoutID,
				ExerciseID:  exerciseID,
				SetID:       setID,
				Reps:        &reps,
				Weight:      &weight,
				CompletedAt: completedAt,
			})
		if err != nil {
			output.Error("%v", err)
			return validationErr("%v", err)
		}
		recs = append(recs, &setRec)

		if err := database.Enqueue(ctx, recs...); err != nil {
			output.Error("queue events: %v", err)
			return storageErr(err)
		}
		if err := database.RecordLocalSet(ctx, db.LocalSet{
			SetID:        setID,
			WorkoutID:    open.WorkoutID,
			ExerciseID:   exerciseID,
			ExerciseName: exercise,
			Reps:         reps,
			Weight:       weight,
			CompletedAt:  completedAt,
		}); err != nil {
			output.Error("%v", err)
			return storageErr(err)
		}

		fmt.Printf("LOGGED %s  %s  %d x %s\n", setID, exercise, reps, output.FormatWeight(weight))

		if added {
			if hint := typoHint(ctx, database, open.WorkoutID, exercise); hint != "" {
				fmt.Println(output.Subtle("  " + hint))
			}
		}

		maybeAutoSync(ctx, database, id)
		return nil
	},
}

// runLogBulk logs every set line of a bulk source. Lines are parsed and
// validated up front, so a bad line fails the batch before anything is
// queued.
func runLogBulk(cmd *cobra.Command, source string) error {
	ctx := cmd.Context()

	completedAt, err := completionTime(cmd)
	if err != nil {
		return err
	}

	lines, err := input.Lines(source)
	if err != nil {
		output.Error("%v", err)
		return usageErr("%v", err)
	}
	if len(lines) == 0 {
		output.Error("no sets in %s", sourceLabel(source))
		return validationErr("no sets in %s", sourceLabel(source))
	}

	sets := make([]input.SetLine, 0, len(lines))
	for i, line := range lines {
		s, err := input.ParseSetLine(line)
		if err != nil {
			output.Error("line %d: %v", i+1, err)
			return validationErr("line %d: %v", i+1, err)
		}
		if err := checkSetValues(s.Reps, s.Weight, s.Exercise); err != nil {
			return fmt.Errorf("line %d: %w", i+1, err)
		}
		sets = append(sets, s)
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

	open, err := database.GetOpenWorkout(ctx)
	if err != nil {
		output.Error("%v", err)
		return storageErr(err)
	}
	if open == nil {
		output.Error("no workout in progress, run 'replog start' first")
		return validationErr("no workout in progress")
	}

	recs := make([]*events.Record, 0, 2*len(sets))
	local := make([]db.LocalSet, 0, len(sets))
	for _, s := range sets {
		exerciseID, added, err := database.EnsureExercise(ctx, open.WorkoutID, s.Exercise)
		if err != nil {
			output.Error("%v", err)
			return storageErr(err)
		}
		if added {
			rec, err := events.New(events.TypeExerciseAdded, id.UserID, id.DeviceID, open.WorkoutID,
				events.ExerciseAdded{
					WorkoutID:    open.WorkoutID,
					ExerciseID:   exerciseID,
					ExerciseName: s.Exercise,
				})
			if err != nil {
				output.Error("%v", err)
				return validationErr("%v", err)
			}
			recs = append(recs, &rec)
		}

		reps, weight := s.Reps, s.Weight
		setID := newEntityID("s")
		setRec, err := events.New(events.TypeSetCompleted, id.UserID, id.DeviceID, open.WorkoutID,
			events.SetCompleted{
				WorkoutID:   open.WorkoutID,
				ExerciseID:  exerciseID,
				SetID:       setID,
				Reps:        &reps,
				Weight:      &weight,
				CompletedAt: completedAt,
			})
		if err != nil {
			output.Error("%v", err)
			return validationErr("%v", err)
		}
		recs = append(recs, &setRec)
		local = append(local, db.LocalSet{
			SetID:        setID,
			WorkoutID:    open.WorkoutID,
			ExerciseID:   exerciseID,
			ExerciseName: s.Exercise,
			Reps:         reps,
			Weight:       weight,
			CompletedAt:  completedAt,
		})
	}

	// One transaction, so a crash can't queue half the file.
	if err := database.Enqueue(ctx, recs...); err != nil {
		output.Error("queue events: %v", err)
		return storageErr(err)
	}
	for _, ls := range local {
		if err := database.RecordLocalSet(ctx, ls); err != nil {
			output.Error("%v", err)
			return storageErr(err)
		}
	}

	for _, ls := range local {
		fmt.Printf("LOGGED %s  %s  %d x %s\n", ls.SetID, ls.ExerciseName, ls.Reps, output.FormatWeight(ls.Weight))
	}
	fmt.Printf("%d sets queued from %s\n", len(local), sourceLabel(source))

	maybeAutoSync(ctx, database, id)
	return nil
}

// checkSetValues applies the range rules shared by single and bulk logging.
func checkSetValues(reps int, weight float64, exercise string) error {
	if reps < 1 {
		output.Error("reps must be at least 1")
		return validationErr("reps must be at least 1")
	}
	if weight < 0 {
		output.Error("weight cannot be negative")
		return validationErr("weight cannot be negative")
	}
	if db.ExerciseSlug(exercise) == "" {
		output.Error("exercise name %q has no usable characters", exercise)
		return validationErr("unusable exercise name")
	}
	return nil
}

// completionTime resolves --at, defaulting to now.
func completionTime(cmd *cobra.Command) (time.Time, error) {
	v, _ := cmd.Flags().GetString("at")
	if v == "" {
		return time.Now().UTC(), nil
	}
	parsed, err := dateparse.ParseAt(v)
	if err != nil {
		output.Error("%v", err)
		return time.Time{}, usageErr("invalid --at value: %v", err)
	}
	return parsed.UTC(), nil
}

// typoHint flags a newly added exercise whose name looks like a variant of
// one already in this workout, so a mistyped name doesn't quietly split an
// exercise in two.
func typoHint(ctx context.Context, database *db.DB, workoutID, name string) string {
	names, err := database.ListWorkoutExercises(ctx, workoutID)
	if err != nil {
		return ""
	}
	slug := db.ExerciseSlug(name)
	var others []string
	for _, n := range names {
		if db.ExerciseSlug(n) != slug {
			others = append(others, n)
		}
	}
	if len(others) == 0 {
		return ""
	}

	if full := suggest.Shorthand(name); full != "" {
		fullSlug := db.ExerciseSlug(full)
		for _, n := range others {
			if db.ExerciseSlug(n) == fullSlug {
				return fmt.Sprintf("did you mean %q? %q is tracked as a new exercise", n, name)
			}
		}
	}
	if matches := suggest.Exercise(name, others); len(matches) > 0 {
		return fmt.Sprintf("did you mean %q? %q is tracked as a new exercise", matches[0], name)
	}
	return ""
}

// sourceLabel names a bulk source for humans.
func sourceLabel(source string) string {
	if source == "-" {
		return "stdin"
	}
	return strings.TrimPrefix(source, "@")
}

func init() {
	rootCmd.AddCommand(logCmd)

	logCmd.Flags().String("at", "", `Completion time ("-5m", "2026-03-02 10:30")`)
}
