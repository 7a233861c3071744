// Package importer materializes package sources into a dist-git repository
// and synchronizes the content across the requested branches.
//
// One import is one call to Importer.ImportPackage: it takes the import
// lock, provisions the repository and branches, clones an ephemeral working
// copy, seeds the first branch from the package content, reconciles every
// later branch against the already-processed ones, pushes, and reports
// which branches got new content. Failures of individual branches are
// recorded by omission, not by failing the whole import.
package importer

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	cp "github.com/otiai10/copy"

	"github.com/distbuild/importd/internal/distgit"
	"github.com/distbuild/importd/internal/git"
	"github.com/distbuild/importd/internal/listing"
	"github.com/distbuild/importd/internal/lookaside"
	"github.com/distbuild/importd/internal/specfile"
)

// DefaultLockTimeout bounds how long an import waits for the import lock.
const DefaultLockTimeout = 120 * time.Second

// ImportError is the fatal import failure: the import as a whole did not
// happen (repository and branch provisioning that succeeded before the
// failure persists; it is idempotent and not rolled back).
type ImportError struct {
	Msg string
	Err error
}

func (e *ImportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *ImportError) Unwrap() error {
	return e.Err
}

func importError(err error, format string, args ...any) *ImportError {
	return &ImportError{Msg: fmt.Sprintf(format, args...), Err: err}
}

// PackageContent is the caller-supplied input of one import. It is not
// modified during the import.
type PackageContent struct {
	// SpecPath is the package spec file.
	SpecPath string

	// ExtraContent are additional files or directories committed next to
	// the spec file. Directories are copied recursively.
	ExtraContent []string

	// SourcePaths are large source artifacts published to the lookaside
	// store instead of being committed.
	SourcePaths []string
}

// ImportResult reports one finished import. BranchCommits may cover only a
// subset of the requested branches: a missing branch failed and was
// skipped, without failing the import.
type ImportResult struct {
	PkgInfo       *specfile.PackageInfo
	BranchCommits map[string]string
	RepoName      string
}

// Importer imports packages into dist-git. All collaborators are injected;
// the zero value is not usable, construct with New.
type Importer struct {
	// GitBaseURL is the base URL working copies are cloned from; the
	// repository name and a .git suffix are appended.
	GitBaseURL string

	// CommitterName and CommitterEmail are the identity configured on
	// every ephemeral working copy. Never written to global git state.
	CommitterName  string
	CommitterEmail string

	// LockTimeout bounds the wait for Lock.
	LockTimeout time.Duration

	Provisioner *distgit.Provisioner
	Publisher   lookaside.Publisher
	Lock        Locker

	// Refresher, when non-nil, is poked after each import so repository
	// listings pick up new repos. Best effort.
	Refresher *listing.Refresher

	Logger *log.Logger
}

// New returns an Importer with the given collaborators and defaults for
// the rest.
func New(gitBaseURL, committerName, committerEmail string, prov *distgit.Provisioner, pub lookaside.Publisher, lock Locker, logger *log.Logger) *Importer {
	if logger == nil {
		logger = log.New(os.Stderr, "[import] ", log.LstdFlags)
	}
	if lock == nil {
		lock = NewMemoryLock()
	}
	return &Importer{
		GitBaseURL:     gitBaseURL,
		CommitterName:  committerName,
		CommitterEmail: committerEmail,
		LockTimeout:    DefaultLockTimeout,
		Provisioner:    prov,
		Publisher:      pub,
		Lock:           lock,
		Logger:         logger,
	}
}

// CloneURL returns the URL the named repository is cloned from.
func (imp *Importer) CloneURL(repoName string) string {
	return fmt.Sprintf("%s/%s.git", imp.GitBaseURL, repoName)
}

// ImportPackage imports content into namespace for the given branches, in
// order. The first branch that processes successfully seeds the content;
// every later branch is reconciled against the already-processed ones.
//
// A fatal condition (lock timeout, unreadable spec, provisioning or clone
// failure) returns an *ImportError. Per-branch failures are logged and the
// branch is left out of the result's BranchCommits.
func (imp *Importer) ImportPackage(ctx context.Context, namespace string, branches []string, content PackageContent) (*ImportResult, error) {
	// Held across provisioning, cloning and pushing: two imports of the
	// same package must not race on repository creation or branch state.
	timeout := imp.LockTimeout
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	release, err := imp.Lock.Acquire(timeout)
	if err != nil {
		return nil, importError(err, "could not acquire the import lock")
	}
	defer release()

	info, err := specfile.Parse(content.SpecPath)
	if err != nil {
		return nil, importError(err, "could not determine package metadata")
	}

	repoName := fmt.Sprintf("%s/%s", namespace, info.Name)
	if err := imp.Provisioner.SetupRepo(ctx, repoName, branches); err != nil {
		return nil, importError(err, "provisioning %s failed", repoName)
	}

	workDir, err := os.MkdirTemp("", "distgit-import-*")
	if err != nil {
		return nil, importError(err, "could not create working directory")
	}
	defer os.RemoveAll(workDir)

	repo, err := git.Clone(ctx, imp.CloneURL(repoName), workDir)
	if err != nil {
		return nil, importError(err, "could not clone %s", repoName)
	}
	if err := repo.SetUser(ctx, imp.CommitterName, imp.CommitterEmail); err != nil {
		return nil, importError(err, "could not configure committer identity")
	}

	message := fmt.Sprintf("automatic import of %s", info.Envr())
	commits := NewBranchCommits()

	for _, branch := range branches {
		if err := imp.processBranch(ctx, repo, repoName, branch, content, message, commits); err != nil {
			imp.Logger.Printf("skipping branch %s: %v", branch, err)
		}
	}

	if imp.Refresher != nil {
		imp.Refresher.Refresh(ctx)
	}

	return &ImportResult{
		PkgInfo:       info,
		BranchCommits: commits.Map(),
		RepoName:      repoName,
	}, nil
}

// processBranch runs the whole per-branch pipeline. Any error means the
// branch is skipped; earlier and later branches are unaffected.
func (imp *Importer) processBranch(ctx context.Context, repo *git.Repo, repoName, branch string, content PackageContent, message string, commits *BranchCommits) error {
	if err := repo.Checkout(ctx, branch); err != nil {
		return err
	}

	if commits.Len() == 0 {
		if err := imp.stageAndCommit(ctx, repo, repoName, content, message); err != nil {
			return err
		}
	} else {
		if err := syncBranch(ctx, repo, branch, commits, message, imp.Logger); err != nil {
			return err
		}
	}

	if err := repo.Push(ctx, branch); err != nil {
		return err
	}

	hash, err := repo.RevParse(ctx, "HEAD")
	if err != nil {
		return err
	}
	commits.Set(branch, hash)
	imp.Logger.Printf("imported %s into %s as %s", repoName, branch, hash)
	return nil
}

// stageAndCommit seeds the working copy from the package content: the spec
// file plus every extra content path go into the index, source artifacts go
// to the lookaside store, and the result is committed. An empty commit
// (identical re-import) is tolerated.
func (imp *Importer) stageAndCommit(ctx context.Context, repo *git.Repo, repoName string, content PackageContent, message string) error {
	toIndex := []string{filepath.Base(content.SpecPath)}
	if err := copyFile(content.SpecPath, filepath.Join(repo.Dir, toIndex[0])); err != nil {
		return fmt.Errorf("failed to stage spec file: %w", err)
	}

	for _, path := range content.ExtraContent {
		base := filepath.Base(path)
		fi, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("failed to stage %s: %w", path, err)
		}
		if fi.IsDir() {
			err = cp.Copy(path, filepath.Join(repo.Dir, base))
		} else {
			err = copyFile(path, filepath.Join(repo.Dir, base))
		}
		if err != nil {
			return fmt.Errorf("failed to stage %s: %w", path, err)
		}
		toIndex = append(toIndex, base)
	}

	if err := repo.Add(ctx, toIndex...); err != nil {
		return err
	}

	if len(content.SourcePaths) > 0 {
		if err := imp.Publisher.Publish(ctx, repoName, content.SourcePaths, true); err != nil {
			return fmt.Errorf("failed to publish source artifacts: %w", err)
		}
	}

	if err := repo.Commit(ctx, message, ""); err != nil {
		if git.IsNothingToCommit(err) {
			imp.Logger.Printf("nothing new to commit for %s", repoName)
			return nil
		}
		return err
	}
	return nil
}

func copyFile(src, dest string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dest, data, 0o644)
}
