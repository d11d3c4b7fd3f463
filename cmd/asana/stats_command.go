package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/ayusman/asana/internal/config"
	"github.com/ayusman/asana/internal/pose"
	"github.com/ayusman/asana/internal/store"
)

func newStatsCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show practice statistics and recent sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, st *store.Store) error {
				stats, err := st.Sessions().Stats(time.Now())
				if err != nil {
					return fmt.Errorf("compute stats: %w", err)
				}
				sessions, err := st.Sessions().List(limit)
				if err != nil {
					return fmt.Errorf("list sessions: %w", err)
				}

				out := cmd.OutOrStdout()
				if jsonOutput {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(map[string]interface{}{
						"stats":    stats,
						"sessions": sessions,
					})
				}

				fmt.Fprintf(out, "Sessions:      %d (%d this week)\n", stats.TotalSessions, stats.SessionsThisWeek)
				fmt.Fprintf(out, "Practice time: %s\n", (time.Duration(stats.TotalSeconds) * time.Second).String())
				fmt.Fprintf(out, "Streak:        %d day(s)\n\n", stats.CurrentStreak)

				fmt.Fprintln(out, renderTable(
					[]string{"Pose", "Best hold (s)"},
					bestScoreRows(stats),
					[]columnAlignment{alignLeft, alignRight},
				))

				if len(sessions) == 0 {
					return nil
				}
				fmt.Fprintln(out)
				fmt.Fprintln(out, renderTable(
					[]string{"Started", "Pose", "Duration", "Best hold (s)"},
					sessionRows(sessions),
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight},
				))
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of recent sessions to show")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output JSON")
	return cmd
}

func bestScoreRows(stats *store.Stats) [][]string {
	rows := make([][]string, 0, len(pose.SelectableLabels))
	for _, label := range pose.SelectableLabels {
		best, ok := stats.BestScores[label]
		value := "-"
		if ok {
			value = strconv.FormatFloat(best, 'f', 1, 64)
		}
		rows = append(rows, []string{label.String(), value})
	}
	return rows
}

func sessionRows(sessions []*store.Session) [][]string {
	rows := make([][]string, 0, len(sessions))
	for _, s := range sessions {
		rows = append(rows, []string{
			s.StartedAt.Local().Format("2006-01-02 15:04"),
			s.Pose.String(),
			s.Duration().Round(time.Second).String(),
			strconv.FormatFloat(s.BestHoldSeconds, 'f', 1, 64),
		})
	}
	return rows
}
