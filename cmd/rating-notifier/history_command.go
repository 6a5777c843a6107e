package main

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"torrent-rating-notifier/internal/storage"
	"torrent-rating-notifier/internal/storage/jsonfile"
)

func newHistoryCommand(cc *commandContext) *cobra.Command {
	var notifiedOnly bool
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List processed titles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cc.ensureConfig()
			if err != nil {
				return err
			}
			store := jsonfile.New(cfg.Storage.Path)
			if _, err := store.Load(); err != nil {
				return err
			}
			return printHistory(cmd.OutOrStdout(), store.All(), notifiedOnly)
		},
	}
	cmd.Flags().BoolVar(&notifiedOnly, "notified", false, "Only show titles that triggered a notification")
	return cmd
}

func printHistory(out io.Writer, records []storage.Record, notifiedOnly bool) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PROCESSED\tRATING\tNOTIFIED\tKEY\tTITLE")
	shown := 0
	for _, rec := range records {
		if notifiedOnly && !rec.Notified {
			continue
		}
		ratingText := "-"
		if rec.Rating != nil {
			ratingText = strconv.FormatFloat(*rec.Rating, 'f', 1, 64)
		}
		notified := "no"
		if rec.Notified {
			notified = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			rec.ProcessedAt.Local().Format(time.DateTime),
			ratingText,
			notified,
			rec.Key,
			rec.DisplayTitle,
		)
		shown++
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(out, "\n%d of %d titles\n", shown, len(records))
	return err
}
