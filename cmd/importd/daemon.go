package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/distbuild/importd/internal/daemon"
	"github.com/distbuild/importd/internal/history"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the spool-directory import daemon",
	Long: `Watch the spool directory for import job files and process them.

Job files are YAML documents naming the namespace, branches and package
content. Finished jobs move to the done/ or failed/ subdirectory of the
spool. Results are recorded in the import history database.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		if cfg.Daemon.SpoolDir == "" {
			fmt.Fprintf(os.Stderr, "Error: daemon.spool_dir is not configured\n")
			os.Exit(1)
		}

		var out io.Writer = os.Stderr
		if cfg.Daemon.LogFile != "" {
			out = &lumberjack.Logger{
				Filename:   cfg.Daemon.LogFile,
				MaxSize:    50, // megabytes
				MaxBackups: 5,
			}
		}
		logger := log.New(out, "[importd] ", log.LstdFlags)

		var hist *history.DB
		if cfg.Daemon.HistoryDB != "" {
			var err error
			hist, err = history.Open(cfg.Daemon.HistoryDB)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			defer hist.Close()
		}

		dcfg := daemon.DefaultConfig()
		dcfg.Logger = logger
		if t := cfg.Daemon.ImportTimeout(); t > 0 {
			dcfg.ImportTimeout = t
		}
		if d := cfg.Daemon.Debounce(); d > 0 {
			dcfg.Debounce = d
		}

		d, err := daemon.New(newImporter(cfg, logger), hist, cfg.Daemon.SpoolDir, dcfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := d.Start(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}
