package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mvarner/replog/internal/db"
	"github.com/mvarner/replog/internal/output"
	"github.com/mvarner/replog/internal/syncconfig"
)

type setReport struct {
	SetID       string    `json:"set_id"`
	Exercise    string    `json:"exercise"`
	Reps        int       `json:"reps"`
	Weight      float64   `json:"weight"`
	CompletedAt time.Time `json:"completed_at"`
}

type openWorkoutReport struct {
	WorkoutID string      `json:"workout_id"`
	StartedAt time.Time   `json:"started_at"`
	Sets      []setReport `json:"sets"`
}

type statusReport struct {
	UserID            string             `json:"user_id"`
	Anonymous         bool               `json:"anonymous"`
	DeviceID          string             `json:"device_id"`
	ServerURL         string             `json:"server_url"`
	Queue             db.QueueStats      `json:"queue"`
	LastSyncAt        *time.Time         `json:"last_sync_at,omitempty"`
	LastAckedSequence *int64             `json:"last_acked_sequence,omitempty"`
	LastError         string             `json:"last_error,omitempty"`
	OpenWorkout       *openWorkoutReport `json:"open_workout,omitempty"`
}

var statusCmd = &cobra.Command{
	Use:     "status",
	Aliases: []string{"st"},
	Short:   "Show identity, queue and the open workout",
	GroupID: "sync",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
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

		stats, err := database.Stats(ctx)
		if err != nil {
			output.Error("%v", err)
			return storageErr(err)
		}
		open, err := database.GetOpenWorkout(ctx)
		if err != nil {
			output.Error("%v", err)
			return storageErr(err)
		}
		var sets []db.LocalSet
		if open != nil {
			sets, err = database.ListLocalSets(ctx, open.WorkoutID)
			if err != nil {
				output.Error("%v", err)
				return storageErr(err)
			}
		}
		state, err := database.GetSyncState(ctx, id.DeviceID)
		if err != nil {
			output.Error("%v", err)
			return storageErr(err)
		}

		if asJSON {
			rep := statusReport{
				UserID:    id.UserID,
				Anonymous: id.Anonymous,
				DeviceID:  id.DeviceID,
				ServerURL: syncconfig.GetServerURL(),
				Queue:     stats,
			}
			if state != nil {
				rep.LastSyncAt = state.LastSyncAt
				rep.LastAckedSequence = state.LastAckedSequence
				rep.LastError = state.LastError
			}
			if open != nil {
				w := &openWorkoutReport{
					WorkoutID: open.WorkoutID,
					StartedAt: open.StartedAt,
					Sets:      make([]setReport, 0, len(sets)),
				}
				for _, s := range sets {
					w.Sets = append(w.Sets, setReport{
						SetID:       s.SetID,
						Exercise:    s.ExerciseName,
						Reps:        s.Reps,
						Weight:      s.Weight,
						CompletedAt: s.CompletedAt,
					})
				}
				rep.OpenWorkout = w
			}
			return output.JSON(rep)
		}

		who := id.UserID
		if id.Anonymous {
			who += " (anonymous)"
		}
		fmt.Printf("User:    %s\n", who)
		fmt.Printf("Device:  %s\n", id.DeviceID)
		fmt.Printf("Server:  %s\n", syncconfig.GetServerURL())
		fmt.Printf("Queue:   %s\n", output.FormatQueueStats(stats))
		if state == nil || state.LastSyncAt == nil {
			fmt.Printf("Synced:  never\n")
		} else {
			cursor := ""
			if state.LastAckedSequence != nil {
				cursor = fmt.Sprintf(" (acked seq %d)", *state.LastAckedSequence)
			}
			fmt.Printf("Synced:  %s%s\n", output.FormatTimeAgo(*state.LastSyncAt), cursor)
		}
		if state != nil && state.LastError != "" {
			fmt.Println(output.Subtle("  last error: " + state.LastError))
		}

		if open != nil {
			fmt.Println()
			fmt.Println(output.FormatOpenWorkout(open))
			if len(sets) == 0 {
				fmt.Println(output.Subtle("  no sets yet"))
			}
			for _, s := range sets {
				fmt.Println(output.FormatSetLine(s))
			}
		}

		if stats.Failed > 0 {
			fmt.Println()
			output.Warning("%d events failed to sync, run 'replog retry'", stats.Failed)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().Bool("json", false, "Emit status as JSON")
}
