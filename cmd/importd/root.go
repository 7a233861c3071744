package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/distbuild/importd/internal/config"
	"github.com/distbuild/importd/internal/distgit"
	"github.com/distbuild/importd/internal/importer"
	"github.com/distbuild/importd/internal/listing"
	"github.com/distbuild/importd/internal/lookaside"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "importd",
	Short: "dist-git package importer",
	Long: `importd materializes package sources into a dist-git repository,
synchronizes the content across the requested release branches, and
publishes large source artifacts to the lookaside store.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c",
		"/etc/importd/importd.yaml", "configuration file")
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(historyCmd)
}

// loadConfig reads the configured file or exits.
func loadConfig() *config.Config {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// newImporter wires an Importer from the configuration.
func newImporter(cfg *config.Config, logger *log.Logger) *importer.Importer {
	var pub lookaside.Publisher
	switch cfg.Lookaside.Mode {
	case config.LookasideUpload:
		pub = lookaside.NewUploader(cfg.Lookaside.UploadURL, logger)
	default:
		pub = lookaside.NewStore(cfg.Lookaside.Root, cfg.Lookaside.Group, logger)
	}

	var lock importer.Locker
	if cfg.Lock.Path != "" {
		lock = importer.NewFileLock(cfg.Lock.Path)
	} else {
		lock = importer.NewMemoryLock()
	}

	prov := distgit.NewProvisioner(cfg.Commands.SetupRepo, cfg.Commands.MkBranch, logger)

	imp := importer.New(cfg.Git.BaseURL, cfg.Git.UserName, cfg.Git.UserEmail,
		prov, pub, lock, logger)
	imp.LockTimeout = cfg.Lock.Timeout()
	if cfg.Commands.PkgList != "" {
		imp.Refresher = listing.NewRefresher(cfg.Commands.PkgList,
			cfg.Commands.PkgListLocation, logger)
	}
	return imp
}
