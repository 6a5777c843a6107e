package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var (
		configFlag   string
		envFileFlag  string
		resetCorrupt bool
	)

	cc := newCommandContext(&configFlag, &envFileFlag)

	rootCmd := &cobra.Command{
		Use:           "rating-notifier",
		Short:         "Scrape new torrent titles, look up their ratings and notify the good ones",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, cc, resetCorrupt)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", defaultConfigPath(), "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&envFileFlag, "env-file", ".env", "Dotenv file loaded before the environment overrides")
	rootCmd.Flags().BoolVar(&resetCorrupt, "reset-corrupt", false, "Move a corrupt state document aside and start with an empty history")

	rootCmd.AddCommand(newRunCommand(cc))
	rootCmd.AddCommand(newHistoryCommand(cc))
	rootCmd.AddCommand(newNormalizeCommand(cc))

	return rootCmd
}
