package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/distbuild/importd/internal/history"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent imports",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		if cfg.Daemon.HistoryDB == "" {
			fmt.Fprintf(os.Stderr, "Error: daemon.history_db is not configured\n")
			os.Exit(1)
		}

		db, err := history.Open(cfg.Daemon.HistoryDB)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer db.Close()

		records, err := db.Recent(context.Background(), historyLimit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		for _, rec := range records {
			fmt.Printf("%s  %-30s %-12s %-12s %s\n",
				rec.ImportedAt.Format("2006-01-02 15:04:05"),
				rec.RepoName, rec.Envr, rec.Branch, rec.Commit)
		}
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "l", 20, "number of records to show")
}
