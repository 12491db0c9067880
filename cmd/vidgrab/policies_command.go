package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

func newPoliciesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "policies",
		Short: "Show the resolution policy of every platform",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.ensure(); err != nil {
				return err
			}

			var rows [][]string
			for _, p := range ctx.registry.All() {
				portrait := "-"
				if p.Orientation {
					portrait = joinHeights(p.Portrait)
				}
				fps := "-"
				if p.DefaultFrameRate > 0 {
					fps = strconv.FormatFloat(p.DefaultFrameRate, 'f', -1, 64)
				}
				rows = append(rows, []string{
					string(p.Platform),
					joinHeights(p.Landscape),
					portrait,
					string(p.Audio),
					string(p.Size),
					fps,
				})
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Platform", "Landscape", "Portrait", "Audio", "Size", "Default FPS"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
			))
			return nil
		},
	}
}

func joinHeights(heights []int) string {
	parts := make([]string, len(heights))
	for i, h := range heights {
		parts[i] = strconv.Itoa(h)
	}
	return strings.Join(parts, ",")
}
