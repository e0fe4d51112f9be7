package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/healthbridge/healthbridge/internal/store"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent translations",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := store.New(cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		defer st.Close()

		translations, err := st.Translations().List(historyLimit)
		if err != nil {
			return fmt.Errorf("failed to list translations: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(translations) == 0 {
			fmt.Fprintln(out, "No translations recorded.")
			return nil
		}

		w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "CREATED\tSCORE\tLEVEL\tSOURCE\tTRANSLATION")
		fmt.Fprintln(w, "-------\t-----\t-----\t------\t-----------")
		for _, t := range translations {
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n",
				t.CreatedAt.Local().Format("2006-01-02 15:04:05"),
				t.Confidence.Score, t.Confidence.Level, t.Source, t.Translation)
		}
		return w.Flush()
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "number of translations to show")
	rootCmd.AddCommand(historyCmd)
}
