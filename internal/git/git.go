// Package git provides the git operations the import pipeline needs on an
// ephemeral working copy: clone, branch checkout, staging, committing with a
// preserved author date, fast-forward merges, tree resets and pushes.
//
// All operations shell out to the git command through internal/run, so
// failures carry the exact command line and its combined output.
package git

import (
	"context"
	"fmt"
	"strings"

	"github.com/distbuild/importd/internal/run"
)

// Repo is a handle to a single working copy. All commands run with the
// working copy as their directory; the process-wide working directory is
// never changed.
type Repo struct {
	// Dir is the working copy root.
	Dir string
}

// Clone clones url into dir and returns a handle to the new working copy.
func Clone(ctx context.Context, url, dir string) (*Repo, error) {
	if _, err := run.Output(ctx, "", "git", "clone", url, dir); err != nil {
		return nil, fmt.Errorf("git clone %s failed: %w", url, err)
	}
	return &Repo{Dir: dir}, nil
}

// git runs a git command inside the working copy.
func (r *Repo) git(ctx context.Context, args ...string) (string, error) {
	return run.Output(ctx, r.Dir, "git", args...)
}

// SetUser configures the committer identity for this working copy only.
func (r *Repo) SetUser(ctx context.Context, name, email string) error {
	if _, err := r.git(ctx, "config", "user.name", name); err != nil {
		return fmt.Errorf("git config user.name failed: %w", err)
	}
	if _, err := r.git(ctx, "config", "user.email", email); err != nil {
		return fmt.Errorf("git config user.email failed: %w", err)
	}
	return nil
}

// Checkout switches the working copy to branch. Local branches are used
// as-is; otherwise a local branch is created from origin/<branch>, and as a
// last resort (a repository with no refs yet) from the current HEAD.
func (r *Repo) Checkout(ctx context.Context, branch string) error {
	if _, err := r.git(ctx, "checkout", branch); err == nil {
		return nil
	}
	if _, err := r.git(ctx, "checkout", "-b", branch, "origin/"+branch); err == nil {
		return nil
	}
	if _, err := r.git(ctx, "checkout", "-b", branch); err != nil {
		return fmt.Errorf("git checkout %s failed: %w", branch, err)
	}
	return nil
}

// Add stages the given paths (relative to the working copy root).
func (r *Repo) Add(ctx context.Context, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}
	args := append([]string{"add", "--"}, paths...)
	if _, err := r.git(ctx, args...); err != nil {
		return fmt.Errorf("git add failed: %w", err)
	}
	return nil
}

// MergeFFOnly attempts a fast-forward-only merge of branch into the
// currently checked-out branch. It reports whether the merge succeeded;
// a refused merge (diverged histories, unknown ref) is not an error.
func (r *Repo) MergeFFOnly(ctx context.Context, branch string) (bool, error) {
	_, err := r.git(ctx, "merge", branch, "--ff-only")
	if err == nil {
		return true, nil
	}
	if run.ExitCode(err) >= 0 {
		return false, nil
	}
	return false, fmt.Errorf("git merge --ff-only %s failed: %w", branch, err)
}

// ResetTree makes the index and working tree match the tree of ref exactly,
// without moving HEAD or rewriting history. The two-tree read-tree form
// drops index entries that exist in HEAD but not in ref.
func (r *Repo) ResetTree(ctx context.Context, ref string) error {
	if _, err := r.git(ctx, "read-tree", "-m", "-u", "HEAD", ref); err != nil {
		return fmt.Errorf("git read-tree %s failed: %w", ref, err)
	}
	return nil
}

// AuthorDate returns the author date of ref in ISO 8601 form.
func (r *Repo) AuthorDate(ctx context.Context, ref string) (string, error) {
	out, err := r.git(ctx, "show", ref, "-q", "--format=%ai")
	if err != nil {
		return "", fmt.Errorf("git show %s failed: %w", ref, err)
	}
	return strings.TrimSpace(out), nil
}

// HasStagedChanges reports whether the index differs from HEAD.
func (r *Repo) HasStagedChanges(ctx context.Context) (bool, error) {
	_, err := r.git(ctx, "diff", "--cached", "--exit-code", "--quiet")
	if err == nil {
		return false, nil
	}
	if run.ExitCode(err) == 1 {
		return true, nil
	}
	return false, fmt.Errorf("git diff --cached failed: %w", err)
}

// Commit records the staged changes. A non-empty date is used as the author
// date so that recommitted content keeps the original timestamp. Hooks are
// bypassed; imported content never goes through local commit hooks.
func (r *Repo) Commit(ctx context.Context, message, date string) error {
	args := []string{"commit", "--no-verify", "-m", message}
	if date != "" {
		args = append(args, "--date", date)
	}
	if _, err := r.git(ctx, args...); err != nil {
		return fmt.Errorf("git commit failed: %w", err)
	}
	return nil
}

// Push pushes branch to origin.
func (r *Repo) Push(ctx context.Context, branch string) error {
	if _, err := r.git(ctx, "push", "origin", branch); err != nil {
		return fmt.Errorf("git push origin %s failed: %w", branch, err)
	}
	return nil
}

// RevParse resolves ref to a commit hash.
func (r *Repo) RevParse(ctx context.Context, ref string) (string, error) {
	out, err := r.git(ctx, "rev-parse", ref)
	if err != nil {
		return "", fmt.Errorf("git rev-parse %s failed: %w", ref, err)
	}
	return strings.TrimSpace(out), nil
}

// IsNothingToCommit reports whether err is a commit failure caused by an
// empty index rather than a real error.
func IsNothingToCommit(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "nothing to commit") ||
		strings.Contains(msg, "nothing added to commit") ||
		strings.Contains(msg, "no changes added to commit")
}
