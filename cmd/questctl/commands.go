package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/p-n-ai/greenquest/internal/app"
	"github.com/p-n-ai/greenquest/internal/curriculum"
	"github.com/p-n-ai/greenquest/internal/identity"
	"github.com/p-n-ai/greenquest/internal/leaderboard"
	"github.com/p-n-ai/greenquest/internal/report"
)

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check curriculum, reward table and roster files",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			graph, _, roster, err := app.LoadContent(cfg)
			if err != nil {
				return err
			}
			printSummary(cmd.OutOrStdout(), graph, roster)
			return nil
		},
	}
}

func printSummary(w io.Writer, graph *curriculum.Graph, roster *identity.Directory) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "LANE\tNODES\tQUESTS")
	for _, lane := range graph.Lanes() {
		quests := 0
		for _, n := range lane.Nodes {
			if n.Quest.ID != "" {
				quests++
			}
		}
		_, _ = fmt.Fprintf(tw, "%s\t%d\t%d\n", lane.ID, len(lane.Nodes), quests)
	}
	_ = tw.Flush()

	_, _ = fmt.Fprintf(w, "\n%d badges, %d courses, %d roster members\n",
		len(graph.Badges()), len(graph.Courses()), roster.Len())
	_, _ = fmt.Fprintln(w, "Curriculum is valid.")
}

// openSaved starts the engine from the persisted snapshot. The memory store
// always starts empty in a new process, so it is refused.
func openSaved(cmd *cobra.Command) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.Store.Driver != "postgres" {
		return nil, fmt.Errorf("%s needs the saved snapshot: set QUEST_STORE_DRIVER=postgres (current driver %q keeps nothing between runs)",
			cmd.Name(), cfg.Store.Driver)
	}
	return app.New(cmd.Context(), cfg)
}

func newLeaderboardCommand() *cobra.Command {
	var (
		scope string
		limit int
	)
	command := &cobra.Command{
		Use:   "leaderboard",
		Short: "Print the ranked leaderboard from the saved snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openSaved(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			rows, err := a.Engine.Leaderboard(scope)
			if err != nil {
				return err
			}
			printLeaderboard(cmd.OutOrStdout(), leaderboard.Top(rows, limit))
			return nil
		},
	}
	command.Flags().StringVar(&scope, "scope", "", `"all", "class:<id>" or "school:<id>"`)
	command.Flags().IntVar(&limit, "limit", 0, "show only the first N rows (0 for all)")
	return command
}

func printLeaderboard(w io.Writer, rows []leaderboard.Row) {
	if len(rows) == 0 {
		_, _ = fmt.Fprintln(w, "No learners ranked yet.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "#\tNAME\tUSER\tXP")
	for _, r := range rows {
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%d\n", r.Position, r.DisplayName, r.UserID, r.TotalXP)
	}
	_ = tw.Flush()
}

func newExportCommand() *cobra.Command {
	var out string
	command := &cobra.Command{
		Use:   "export",
		Short: "Write the leaderboard and all submissions to an XLSX workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openSaved(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			data, err := report.Collect(a.Engine)
			if err != nil {
				return err
			}
			f, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("create %s: %w", out, err)
			}
			if err := report.WriteWorkbook(f, data); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("close %s: %w", out, err)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d learners and %d submissions to %s\n",
				len(data.Leaderboard), len(data.Submissions), out)
			return nil
		},
	}
	command.Flags().StringVarP(&out, "out", "o", "greenquest-report.xlsx", "output file")
	return command
}

func newResetCommand() *cobra.Command {
	var (
		teacherID string
		yes       bool
	)
	command := &cobra.Command{
		Use:   "reset",
		Short: "Clear all learner progress and submissions in the saved snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to reset without --yes")
			}
			a, err := openSaved(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			actor := a.Engine.Directory().Resolve(identity.Actor{UserID: teacherID, Role: identity.RoleTeacher})
			if m, ok := a.Engine.Directory().Lookup(teacherID); ok && m.Role != identity.RoleTeacher {
				return fmt.Errorf("%s is not a teacher in the roster", teacherID)
			}
			if err := a.Engine.Reset(actor); err != nil {
				return err
			}
			if err := a.Save(cmd.Context()); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "All progress and submissions cleared.")
			return nil
		},
	}
	command.Flags().StringVar(&teacherID, "as", "", "teacher user id performing the reset")
	command.Flags().BoolVar(&yes, "yes", false, "confirm the reset")
	_ = command.MarkFlagRequired("as")
	return command
}
