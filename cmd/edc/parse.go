package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/PavelSimon/EDC-data/models"
	"github.com/PavelSimon/EDC-data/parser"
)

func newParseCmd(root *rootOptions) *cobra.Command {
	var day string
	cmd := &cobra.Command{
		Use:   "parse FILE --date YYYY-MM-DD",
		Short: "Parse a saved response page and print its records as JSON lines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := root.load(); err != nil {
				return err
			}
			date, err := models.ParseDate(day)
			if err != nil {
				return fmt.Errorf("invalid --date: %w", err)
			}

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			rows, ok, err := parser.FirstTable(f)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%s: no table found", args[0])
			}

			records, rowErrs := parser.ParseTable(date, rows)
			for _, rowErr := range rowErrs {
				slog.Warn("skipping malformed row", slog.Any("error", rowErr))
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, rec := range records {
				if err := enc.Encode(rec); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&day, "date", "", "Day the page was published for (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}
