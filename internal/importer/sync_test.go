package importer

import (
	"context"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/distbuild/importd/internal/git"
)

func mustGit(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %v failed: %v\n%s", args, err, out)
	}
	return strings.TrimSpace(string(out))
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
}

// setupSyncRepo builds a repository with an imported master branch carrying
// the package content later branches must converge to.
func setupSyncRepo(t *testing.T) *git.Repo {
	t.Helper()
	dir := t.TempDir()

	mustGit(t, dir, "init", "-q")
	mustGit(t, dir, "checkout", "-q", "-b", "master")
	mustGit(t, dir, "config", "user.name", "Test User")
	mustGit(t, dir, "config", "user.email", "test@example.com")

	writeFile(t, dir, "foo.spec", "Name: foo\nVersion: 1.0\nRelease: 1\n")
	mustGit(t, dir, "add", "foo.spec")
	mustGit(t, dir, "commit", "-q", "-m", "automatic import of 1.0-1",
		"--date", "2021-03-04 05:06:07 +0000")

	return &git.Repo{Dir: dir}
}

func discard() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func masterCommits(t *testing.T, repo *git.Repo) *BranchCommits {
	t.Helper()
	commits := NewBranchCommits()
	commits.Set("master", mustGit(t, repo.Dir, "rev-parse", "master"))
	return commits
}

func TestSyncBranchFastForward(t *testing.T) {
	ctx := context.Background()
	repo := setupSyncRepo(t)

	// f41 sits at an older master commit: a strict ancestor, so a
	// fast-forward must win and no new commit may be created.
	mustGit(t, repo.Dir, "branch", "f41", "master")
	writeFile(t, repo.Dir, "extra.txt", "more\n")
	mustGit(t, repo.Dir, "add", "extra.txt")
	mustGit(t, repo.Dir, "commit", "-q", "-m", "newer")

	mustGit(t, repo.Dir, "checkout", "-q", "f41")
	countBefore := mustGit(t, repo.Dir, "rev-list", "--all", "--count")

	if err := syncBranch(ctx, repo, "f41", masterCommits(t, repo), "sync", discard()); err != nil {
		t.Fatalf("syncBranch() failed: %v", err)
	}

	if mustGit(t, repo.Dir, "rev-parse", "f41") != mustGit(t, repo.Dir, "rev-parse", "master") {
		t.Error("f41 does not point at master after fast-forward")
	}
	if countAfter := mustGit(t, repo.Dir, "rev-list", "--all", "--count"); countAfter != countBefore {
		t.Errorf("commit count changed %s -> %s: fast-forward created a commit",
			countBefore, countAfter)
	}
}

func TestSyncBranchResetFallback(t *testing.T) {
	ctx := context.Background()
	repo := setupSyncRepo(t)

	// An orphan branch shares no history with master, so no fast-forward
	// is possible and the content must be flattened onto it.
	mustGit(t, repo.Dir, "checkout", "-q", "--orphan", "el9")
	mustGit(t, repo.Dir, "rm", "-r", "-f", "-q", ".")
	writeFile(t, repo.Dir, "legacy.spec", "Name: legacy\n")
	mustGit(t, repo.Dir, "add", "legacy.spec")
	mustGit(t, repo.Dir, "commit", "-q", "-m", "unrelated root")

	if err := syncBranch(ctx, repo, "el9", masterCommits(t, repo), "sync", discard()); err != nil {
		t.Fatalf("syncBranch() failed: %v", err)
	}

	// The resulting tree equals master's tree exactly; files only the
	// orphan tracked are gone, from the commit and the working tree both.
	if mustGit(t, repo.Dir, "rev-parse", "el9^{tree}") != mustGit(t, repo.Dir, "rev-parse", "master^{tree}") {
		t.Error("el9 tree does not match master tree after reset fallback")
	}
	if _, err := os.Stat(filepath.Join(repo.Dir, "legacy.spec")); !os.IsNotExist(err) {
		t.Error("stale file legacy.spec survived the reset")
	}
	// History is flattened, not replaced: the orphan root is the parent.
	if mustGit(t, repo.Dir, "rev-parse", "el9") == mustGit(t, repo.Dir, "rev-parse", "master") {
		t.Error("el9 was fast-forwarded, want reset+recommit")
	}
	// The recommit wears master's original author date.
	wantDate := mustGit(t, repo.Dir, "show", "master", "-q", "--format=%ai")
	if gotDate := mustGit(t, repo.Dir, "show", "el9", "-q", "--format=%ai"); gotDate != wantDate {
		t.Errorf("author date = %q, want %q", gotDate, wantDate)
	}
}

func TestSyncBranchNoSpuriousCommit(t *testing.T) {
	ctx := context.Background()
	repo := setupSyncRepo(t)

	// An orphan branch with a byte-identical tree: after the reset the
	// index matches HEAD, so no commit may be created.
	mustGit(t, repo.Dir, "checkout", "-q", "--orphan", "copy")
	mustGit(t, repo.Dir, "commit", "-q", "-m", "identical root")
	before := mustGit(t, repo.Dir, "rev-parse", "copy")

	if err := syncBranch(ctx, repo, "copy", masterCommits(t, repo), "sync", discard()); err != nil {
		t.Fatalf("syncBranch() failed: %v", err)
	}

	if after := mustGit(t, repo.Dir, "rev-parse", "copy"); after != before {
		t.Errorf("copy moved from %s to %s, want no new commit", before, after)
	}
}

func TestSyncBranchFirstCandidateWins(t *testing.T) {
	ctx := context.Background()
	repo := setupSyncRepo(t)

	// Two candidates: "master" and a descendant "f40". Processing order
	// says master first, so the branch must land on master, not f40.
	mustGit(t, repo.Dir, "checkout", "-q", "-b", "f40")
	writeFile(t, repo.Dir, "f40.conf", "f40\n")
	mustGit(t, repo.Dir, "add", "f40.conf")
	mustGit(t, repo.Dir, "commit", "-q", "-m", "f40 only")

	mustGit(t, repo.Dir, "checkout", "-q", "-b", "f41", "master")

	commits := NewBranchCommits()
	commits.Set("master", mustGit(t, repo.Dir, "rev-parse", "master"))
	commits.Set("f40", mustGit(t, repo.Dir, "rev-parse", "f40"))

	if err := syncBranch(ctx, repo, "f41", commits, "sync", discard()); err != nil {
		t.Fatalf("syncBranch() failed: %v", err)
	}

	if mustGit(t, repo.Dir, "rev-parse", "f41") != mustGit(t, repo.Dir, "rev-parse", "master") {
		t.Error("f41 did not stop at the first fast-forwardable candidate")
	}
}
