package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/liftsync/pkg/types"
)

// sessionView is the CLI rendering of a session.
type sessionView struct {
	Row       int64      `json:"row"`
	ID        string     `json:"id"`
	Start     time.Time  `json:"start"`
	End       *time.Time `json:"end,omitempty"`
	Completed bool       `json:"completed"`
	Sync      string     `json:"sync_status"`
	Sets      int        `json:"sets"`
}

type setView struct {
	Row         int64   `json:"row"`
	SetNumber   int     `json:"set_number"`
	ExerciseRow *int64  `json:"exercise_row,omitempty"`
	Weight      float64 `json:"weight"`
	Repetitions int     `json:"repetitions"`
}

type exerciseView struct {
	Row      int64  `json:"row"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Muscles  string `json:"muscle_groups"`
	Custom   bool   `json:"custom"`
}

func viewSession(s *types.WorkoutSession, sets int) sessionView {
	return sessionView{
		Row:       s.RowID,
		ID:        s.SessionID,
		Start:     s.StartTime,
		End:       s.EndTime,
		Completed: s.IsCompleted,
		Sync:      string(s.SyncStatus),
		Sets:      sets,
	}
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Record workout sessions",
}

var sessionStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a new session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		s, err := a.workouts.StartSession(cmd.Context())
		if err != nil {
			return err
		}
		if flagJSON {
			return printJSON(cmd.OutOrStdout(), viewSession(s, 0))
		}
		fmt.Fprintf(cmd.OutOrStdout(), "session %d started (%s)\n", s.RowID, s.SessionID)
		return nil
	},
}

var sessionAddSetCmd = &cobra.Command{
	Use:     "add-set <session-row> <exercise> <weight> <reps>",
	Short:   "Append a set to a session",
	Example: `  liftsync session add-set 3 "Bench Press" 60 10`,
	Args:    cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionRow, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return userErrorf("invalid session row %q", args[0])
		}
		weight, err := strconv.ParseFloat(args[2], 64)
		if err != nil {
			return userErrorf("invalid weight %q", args[2])
		}
		reps, err := strconv.Atoi(args[3])
		if err != nil {
			return userErrorf("invalid reps %q", args[3])
		}

		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		ex, err := a.workouts.FindExercise(cmd.Context(), args[1])
		if err != nil {
			return userErrorf("exercise %q: %v", args[1], err)
		}
		set, err := a.workouts.AddSet(cmd.Context(), sessionRow, ex.RowID, weight, reps)
		if err != nil {
			return err
		}
		if flagJSON {
			return printJSON(cmd.OutOrStdout(), setView{
				Row: set.RowID, SetNumber: set.SetNumber, ExerciseRow: set.ExerciseRow,
				Weight: set.Weight, Repetitions: set.Repetitions,
			})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "set %d: %s %gx%d\n", set.SetNumber, ex.Name, set.Weight, set.Repetitions)
		return nil
	},
}

var sessionCompleteCmd = &cobra.Command{
	Use:   "complete <session-row>",
	Short: "Mark a session completed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		row, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return userErrorf("invalid session row %q", args[0])
		}
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		s, err := a.workouts.CompleteSession(cmd.Context(), row)
		if err != nil {
			return err
		}
		if flagJSON {
			return printJSON(cmd.OutOrStdout(), viewSession(s, 0))
		}
		fmt.Fprintf(cmd.OutOrStdout(), "session %d completed\n", s.RowID)
		return nil
	},
}

var sessionListLimit int

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		sessions, err := a.workouts.ListSessions(cmd.Context(), sessionListLimit)
		if err != nil {
			return err
		}
		views := make([]sessionView, 0, len(sessions))
		for _, s := range sessions {
			sets, err := a.workouts.Sets(cmd.Context(), s.RowID)
			if err != nil {
				return err
			}
			views = append(views, viewSession(s, len(sets)))
		}

		if flagJSON {
			return printJSON(cmd.OutOrStdout(), views)
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ROW\tSTART\tSETS\tCOMPLETED\tSYNC")
		for _, v := range views {
			fmt.Fprintf(tw, "%d\t%s\t%d\t%t\t%s\n", v.Row, v.Start.Local().Format(time.DateTime), v.Sets, v.Completed, v.Sync)
		}
		return tw.Flush()
	},
}

var exerciseCmd = &cobra.Command{
	Use:   "exercise",
	Short: "Inspect the exercise catalog",
}

var exerciseListCmd = &cobra.Command{
	Use:   "list",
	Short: "List exercises",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		exercises, err := a.workouts.ListExercises(cmd.Context())
		if err != nil {
			return err
		}
		views := make([]exerciseView, 0, len(exercises))
		for _, e := range exercises {
			views = append(views, exerciseView{Row: e.RowID, Name: e.Name, Category: e.Category, Muscles: e.MuscleGroups, Custom: e.IsCustom})
		}
		if flagJSON {
			return printJSON(cmd.OutOrStdout(), views)
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ROW\tNAME\tCATEGORY\tCUSTOM")
		for _, v := range views {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%t\n", v.Row, v.Name, v.Category, v.Custom)
		}
		return tw.Flush()
	},
}

func init() {
	sessionListCmd.Flags().IntVar(&sessionListLimit, "limit", 20, "maximum sessions to list (0 for all)")

	sessionCmd.AddCommand(sessionStartCmd, sessionAddSetCmd, sessionCompleteCmd, sessionListCmd)
	exerciseCmd.AddCommand(exerciseListCmd)
}
