// Package daemon runs the spool-directory import service.
//
// The daemon:
//  1. Picks up any job files already waiting in the spool directory
//  2. Watches the spool directory for new *.yaml job files
//  3. Runs each job through the importer under a watchdog timeout
//  4. Records results in the import history and archives the job file
//  5. Handles graceful shutdown
package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/distbuild/importd/internal/history"
	"github.com/distbuild/importd/internal/importer"
)

// Subdirectories of the spool dir that finished job files move to.
const (
	doneDir   = "done"
	failedDir = "failed"
)

// Config holds daemon tuning knobs.
type Config struct {
	// ImportTimeout is the watchdog around one import job. The importer
	// has no mid-import cancellation, so the timeout bounds the whole
	// call from the outside.
	ImportTimeout time.Duration

	// Debounce is how long to wait after a spool event before processing,
	// so a file still being written is not picked up half-finished.
	Debounce time.Duration

	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ImportTimeout: 30 * time.Minute,
		Debounce:      500 * time.Millisecond,
		Logger:        log.New(os.Stderr, "[importd] ", log.LstdFlags),
	}
}

// Daemon watches the spool directory and runs imports.
type Daemon struct {
	imp      *importer.Importer
	hist     *history.DB
	spoolDir string
	config   *Config

	watcher *fsnotify.Watcher

	pending   map[string]time.Time // job path -> last event time
	pendingMu sync.Mutex

	wg sync.WaitGroup
}

// New creates a Daemon importing jobs from spoolDir. The history database
// is optional; a nil hist disables recording.
func New(imp *importer.Importer, hist *history.DB, spoolDir string, config *Config) (*Daemon, error) {
	if imp == nil {
		return nil, fmt.Errorf("importer cannot be nil")
	}
	if spoolDir == "" {
		return nil, fmt.Errorf("spoolDir cannot be empty")
	}
	if config == nil {
		config = DefaultConfig()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	return &Daemon{
		imp:      imp,
		hist:     hist,
		spoolDir: spoolDir,
		config:   config,
		watcher:  watcher,
		pending:  make(map[string]time.Time),
	}, nil
}

// Start runs the daemon until ctx is cancelled.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Println("starting import daemon")

	for _, sub := range []string{doneDir, failedDir} {
		if err := os.MkdirAll(filepath.Join(d.spoolDir, sub), 0o755); err != nil {
			return fmt.Errorf("failed to create spool subdirectory: %w", err)
		}
	}

	if err := d.watcher.Add(d.spoolDir); err != nil {
		return fmt.Errorf("failed to watch spool directory: %w", err)
	}
	d.config.Logger.Printf("watching %s", d.spoolDir)

	// Jobs that arrived while the daemon was down.
	if err := d.queueExisting(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	d.wg.Add(2)
	go d.watchEvents(ctx)
	go d.processPending(ctx)

	<-ctx.Done()
	d.config.Logger.Println("shutdown signal received")

	if err := d.watcher.Close(); err != nil {
		d.config.Logger.Printf("error closing watcher: %v", err)
	}
	d.wg.Wait()
	d.config.Logger.Println("import daemon stopped")
	return nil
}

// queueExisting queues every job file already present in the spool.
func (d *Daemon) queueExisting() error {
	entries, err := os.ReadDir(d.spoolDir)
	if err != nil {
		return fmt.Errorf("failed to read spool directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && isJobFile(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		d.queue(filepath.Join(d.spoolDir, name))
	}
	if len(names) > 0 {
		d.config.Logger.Printf("queued %d existing job(s)", len(names))
	}
	return nil
}

func isJobFile(name string) bool {
	ext := filepath.Ext(name)
	return ext == ".yaml" || ext == ".yml"
}

// watchEvents queues job files as spool events arrive.
func (d *Daemon) watchEvents(ctx context.Context) {
	defer d.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !isJobFile(event.Name) {
				continue
			}
			d.queue(event.Name)

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.config.Logger.Printf("watcher error: %v", err)
		}
	}
}

func (d *Daemon) queue(path string) {
	d.pendingMu.Lock()
	defer d.pendingMu.Unlock()
	d.pending[path] = time.Now()
}

// processPending runs queued jobs once their debounce window has passed.
func (d *Daemon) processPending(ctx context.Context) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.Debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		for _, path := range d.takeReady() {
			d.runJob(ctx, path)
		}
	}
}

// takeReady removes and returns the queued paths whose debounce window has
// elapsed, oldest first.
func (d *Daemon) takeReady() []string {
	d.pendingMu.Lock()
	defer d.pendingMu.Unlock()

	cutoff := time.Now().Add(-d.config.Debounce)
	var ready []string
	for path, queued := range d.pending {
		if queued.Before(cutoff) {
			ready = append(ready, path)
			delete(d.pending, path)
		}
	}
	sort.Strings(ready)
	return ready
}

// runJob executes one job file end to end and archives it.
func (d *Daemon) runJob(ctx context.Context, path string) {
	if _, err := os.Stat(path); err != nil {
		return // already archived or removed
	}
	d.config.Logger.Printf("processing job %s", filepath.Base(path))

	job, err := ParseJob(path)
	if err != nil {
		d.config.Logger.Printf("rejecting job: %v", err)
		d.archive(path, failedDir)
		return
	}

	importCtx, cancel := context.WithTimeout(ctx, d.config.ImportTimeout)
	res, err := d.imp.ImportPackage(importCtx, job.Namespace, job.Branches, job.Content())
	cancel()
	if err != nil {
		d.config.Logger.Printf("import failed: %v", err)
		d.archive(path, failedDir)
		return
	}

	if len(res.BranchCommits) == 0 {
		// Nothing landed. Partial coverage is success, total failure
		// is not, matching the one-shot importer.
		d.config.Logger.Printf("import of %s produced no branches", res.RepoName)
		d.archive(path, failedDir)
		return
	}

	d.record(ctx, res)
	d.config.Logger.Printf("imported %s: %d/%d branch(es)",
		res.RepoName, len(res.BranchCommits), len(job.Branches))
	d.archive(path, doneDir)
}

// record writes one history row per imported branch.
func (d *Daemon) record(ctx context.Context, res *importer.ImportResult) {
	if d.hist == nil {
		return
	}
	for branch, commit := range res.BranchCommits {
		rec := history.Record{
			RepoName: res.RepoName,
			Package:  res.PkgInfo.Name,
			Envr:     res.PkgInfo.Envr(),
			Branch:   branch,
			Commit:   commit,
		}
		if err := d.hist.Add(ctx, rec); err != nil {
			d.config.Logger.Printf("warning: %v", err)
		}
	}
}

// archive moves a finished job file into the given spool subdirectory.
func (d *Daemon) archive(path, sub string) {
	dest := filepath.Join(d.spoolDir, sub, filepath.Base(path))
	if err := os.Rename(path, dest); err != nil {
		d.config.Logger.Printf("failed to archive job file: %v", err)
	}
}
