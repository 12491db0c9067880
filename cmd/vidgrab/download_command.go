package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/tvoe/vidgrab/internal/ytdlp"
)

func newDownloadCommand(ctx *commandContext) *cobra.Command {
	var format string
	var outputDir string
	var quiet bool

	cmd := &cobra.Command{
		Use:   "download <url>",
		Short: "Download one of the offered formats to a local directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.ensure(); err != nil {
				return err
			}

			var progressFn ytdlp.ProgressCallback
			if !quiet {
				progressFn = progressPrinter(cmd.ErrOrStderr())
			}

			file, err := ctx.videos.Download(cmd.Context(), args[0], format, progressFn)
			if err != nil {
				return err
			}
			defer file.Cleanup()

			if err := os.MkdirAll(outputDir, 0755); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
			dest := filepath.Join(outputDir, file.FileName)
			if err := moveFile(file.Path, dest); err != nil {
				return err
			}

			if !quiet {
				fmt.Fprintln(cmd.ErrOrStderr())
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", dest, humanize.IBytes(uint64(file.Size)))
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "", "Format identifier as listed by the formats command")
	cmd.Flags().StringVarP(&outputDir, "output", "o", ".", "Directory to write the file to")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not print progress")
	_ = cmd.MarkFlagRequired("format")

	return cmd
}

func progressPrinter(w io.Writer) ytdlp.ProgressCallback {
	return func(p ytdlp.Progress) {
		if p.Phase == ytdlp.PhaseMerging {
			fmt.Fprintf(w, "\r[merging] %-40s", "")
			return
		}
		size := "?"
		if p.TotalBytes > 0 {
			size = humanize.IBytes(p.TotalBytes)
		}
		fmt.Fprintf(w, "\r[stream %d] %5.1f%% of %s at %s ETA %s   ", p.Stream, p.Percent, size, p.Speed, p.ETA)
	}
}

// moveFile renames src to dst, copying when they are on different filesystems
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open download: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("failed to write %s: %w", dst, err)
	}
	return out.Close()
}
