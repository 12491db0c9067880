package main

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/tvoe/vidgrab/internal/domain"
)

func newFormatsCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "formats <url>",
		Short: "List the download options offered for a video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.ensure(); err != nil {
				return err
			}
			info, err := ctx.videos.GetVideoDetails(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			}

			fmt.Fprintf(out, "%s\n", info.Title)
			fmt.Fprintf(out, "%s · %s · %s views\n", info.Channel, info.DurationString, viewCount(info.ViewCount))
			fmt.Fprintln(out, renderTable(
				[]string{"Format", "Resolution", "FPS", "Ext", "Size"},
				optionRows(info.DownloadOptions),
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignRight},
			))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the video details as JSON")
	return cmd
}

func optionRows(options []domain.DownloadOption) [][]string {
	rows := make([][]string, 0, len(options))
	for _, opt := range options {
		rows = append(rows, []string{
			opt.Format,
			opt.Resolution,
			frameRate(opt.FrameRate),
			opt.Extension,
			estimatedSize(opt.EstimatedSizeMB),
		})
	}
	return rows
}

func frameRate(fps *float64) string {
	if fps == nil {
		return "-"
	}
	return strconv.FormatFloat(*fps, 'f', -1, 64)
}

// estimatedSize renders a size given in MiB
func estimatedSize(mb *float64) string {
	if mb == nil {
		return "unknown"
	}
	return humanize.IBytes(uint64(*mb * 1024 * 1024))
}

func viewCount(n *int64) string {
	if n == nil {
		return "?"
	}
	return humanize.Comma(*n)
}
