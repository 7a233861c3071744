// Package lookaside publishes large source artifacts to the lookaside
// content store, keeping them out of git history.
//
// Two publishers exist: Store copies files into a local content-addressed
// tree (the importer runs on the dist-git host itself), and Uploader sends
// them to a remote upload endpoint over HTTP. The configuration selects
// which one the importer uses.
package lookaside

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
)

// Publisher stores source artifacts under a repository's namespace.
type Publisher interface {
	// Publish stores each of the given files for repoName. Publishing a
	// file whose content is already stored is a no-op; replace only
	// affects publishers that track metadata beyond content identity.
	Publish(ctx context.Context, repoName string, paths []string, replace bool) error
}

// Store is a Publisher writing into a local lookaside tree. Entries are
// addressed as <root>/<repo>/<filename>/<hash>/<filename>, so identical
// content is stored exactly once.
type Store struct {
	// Root is the lookaside tree root.
	Root string

	// Group, when non-empty, is the group that must own new entries.
	// Writes run with the effective GID switched to it.
	Group string

	Logger *log.Logger
}

// NewStore returns a Store rooted at root.
func NewStore(root, group string, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.New(os.Stderr, "[lookaside] ", log.LstdFlags)
	}
	return &Store{Root: root, Group: group, Logger: logger}
}

// Publish copies the files into the lookaside tree.
func (s *Store) Publish(ctx context.Context, repoName string, paths []string, replace bool) error {
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.publishOne(repoName, path); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) publishOne(repoName, path string) error {
	sum, err := fileChecksum(path)
	if err != nil {
		return err
	}

	name := filepath.Base(path)
	dest := filepath.Join(s.Root, repoName, name, sum, name)

	if _, err := os.Stat(dest); err == nil {
		s.Logger.Printf("%s already in lookaside as %s", name, sum)
		return nil
	}

	return withGroup(s.Group, func() error {
		if err := os.MkdirAll(filepath.Dir(dest), 0o775); err != nil {
			return fmt.Errorf("failed to create lookaside directory: %w", err)
		}
		if err := copyFile(path, dest); err != nil {
			return fmt.Errorf("failed to store %s in lookaside: %w", name, err)
		}
		s.Logger.Printf("stored %s as %s/%s/%s", name, repoName, name, sum)
		return nil
	})
}

// fileChecksum returns the hex digest of the file's content. The lookaside
// protocol addresses entries by MD5; this is an identifier, not a security
// boundary.
func fileChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open source file: %w", err)
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dest)
		return err
	}
	return out.Close()
}
