package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ayusman/asana/internal/config"
	"github.com/ayusman/asana/internal/pose"
	"github.com/ayusman/asana/internal/store"
)

func newPosesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "poses",
		Short: "List poses with recorded samples and training state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, st *store.Store) error {
				counts, err := st.Samples().Counts()
				if err != nil {
					return fmt.Errorf("count samples: %w", err)
				}
				templates, err := st.Templates().List()
				if err != nil {
					return fmt.Errorf("list templates: %w", err)
				}
				trained := make(map[pose.Label]*store.Template, len(templates))
				for _, t := range templates {
					trained[t.Pose] = t
				}

				rows := make([][]string, 0, len(pose.SelectableLabels))
				for _, label := range pose.SelectableLabels {
					updated := "-"
					if t, ok := trained[label]; ok {
						updated = t.UpdatedAt.Local().Format("2006-01-02 15:04")
					}
					rows = append(rows, []string{
						strconv.Itoa(label.Index()),
						label.String(),
						strconv.Itoa(counts[label]),
						yesNo(trained[label] != nil),
						updated,
					})
				}

				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Index", "Pose", "Samples", "Trained", "Updated"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
}
