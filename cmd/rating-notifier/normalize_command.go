package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"torrent-rating-notifier/internal/normalize"
)

func newNormalizeCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "normalize <title>...",
		Short: "Show the search query and dedup key derived from scraped titles",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cc.ensureConfig()
			if err != nil {
				return err
			}
			n := normalize.NewNormalizer(cfg.Dedup)
			out := cmd.OutOrStdout()
			for _, raw := range args {
				query := normalize.ToSearchQuery(raw)
				if query == "" {
					fmt.Fprintf(out, "%q\n  degenerate, would be skipped\n", raw)
					continue
				}
				fmt.Fprintf(out, "%q\n  query: %s\n  key:   %s\n", raw, query, n.Key(raw))
			}
			return nil
		},
	}
}
