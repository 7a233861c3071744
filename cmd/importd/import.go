package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/distbuild/importd/internal/importer"
)

var (
	importNamespace string
	importBranches  []string
	importSpec      string
	importExtra     []string
	importSources   []string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a package into dist-git",
	Long: `Import package sources into the dist-git repository for the given
branches.

The first branch seeds the content: the spec file and extra content are
committed, source artifacts go to the lookaside store. Every later branch
is synchronized against the branches already imported. Branches that fail
are reported and skipped; the import succeeds with partial coverage.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		logger := log.New(os.Stderr, "[import] ", log.LstdFlags)
		imp := newImporter(cfg, logger)

		content := importer.PackageContent{
			SpecPath:     importSpec,
			ExtraContent: importExtra,
			SourcePaths:  importSources,
		}

		res, err := imp.ImportPackage(context.Background(),
			importNamespace, importBranches, content)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("%s (%s)\n", res.RepoName, res.PkgInfo.Envr())
		for _, branch := range importBranches {
			if commit, ok := res.BranchCommits[branch]; ok {
				fmt.Printf("  %-12s %s\n", branch, commit)
			} else {
				fmt.Printf("  %-12s FAILED\n", branch)
			}
		}
		if len(res.BranchCommits) == 0 {
			os.Exit(1)
		}
	},
}

func init() {
	importCmd.Flags().StringVarP(&importNamespace, "namespace", "n", "", "repository namespace (e.g. user/project)")
	importCmd.Flags().StringSliceVarP(&importBranches, "branch", "b", nil, "branch to import into (repeatable, order matters)")
	importCmd.Flags().StringVarP(&importSpec, "spec", "s", "", "package spec file")
	importCmd.Flags().StringSliceVar(&importExtra, "extra", nil, "extra file or directory to commit (repeatable)")
	importCmd.Flags().StringSliceVar(&importSources, "source", nil, "source artifact for the lookaside store (repeatable)")

	_ = importCmd.MarkFlagRequired("namespace")
	_ = importCmd.MarkFlagRequired("branch")
	_ = importCmd.MarkFlagRequired("spec")
}
