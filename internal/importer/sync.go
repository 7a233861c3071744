package importer

import (
	"context"
	"fmt"
	"log"

	"github.com/distbuild/importd/internal/git"
)

// syncBranch reconciles the checked-out newBranch with the branches already
// processed in this import. The caller must have checked newBranch out and
// commits must be non-empty.
//
// Branches of one package usually differ only in packaging metadata, so a
// fast-forward merge against any already-pushed branch is tried first, in
// processing order; the first branch that fast-forwards wins and history
// stays flat. When none fast-forwards, the working tree and index are reset
// to the first processed branch's content (history is not rewritten) and
// the result is committed with that branch's original author date, so
// synchronized branches keep a consistent temporal narrative instead of all
// claiming "now".
func syncBranch(ctx context.Context, repo *git.Repo, newBranch string, commits *BranchCommits, message string, logger *log.Logger) error {
	for _, branch := range commits.Branches() {
		ok, err := repo.MergeFFOnly(ctx, branch)
		if err != nil {
			return err
		}
		if ok {
			logger.Printf("merged %s fast-forward into %s", branch, newBranch)
			return nil
		}
	}

	base := commits.First()
	logger.Printf("resetting branch %s to contents of %s", newBranch, base)
	if err := repo.ResetTree(ctx, base); err != nil {
		return err
	}

	date, err := repo.AuthorDate(ctx, base)
	if err != nil {
		return err
	}

	changed, err := repo.HasStagedChanges(ctx)
	if err != nil {
		return err
	}
	if !changed {
		logger.Printf("nothing to commit into branch %s", newBranch)
		return nil
	}

	if err := repo.Commit(ctx, message, date); err != nil {
		return fmt.Errorf("failed to commit synced content into %s: %w", newBranch, err)
	}
	return nil
}
