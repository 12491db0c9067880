package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var policyFlag string
	var verbose bool

	ctx := newCommandContext(&policyFlag, &verbose)

	rootCmd := &cobra.Command{
		Use:           "vidgrab",
		Short:         "List and download the formats offered for a video",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&policyFlag, "policy", "p", "", "Resolution policy file (overrides POLICY_FILE)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log yt-dlp activity to stderr")

	rootCmd.AddCommand(newFormatsCommand(ctx))
	rootCmd.AddCommand(newDownloadCommand(ctx))
	rootCmd.AddCommand(newPoliciesCommand(ctx))

	return rootCmd
}
