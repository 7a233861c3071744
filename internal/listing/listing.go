// Package listing refreshes the repository browser's package listing after
// imports. The refresh is a fire-and-forget external command; a failed
// refresh only delays when new repositories show up in the listing, so
// errors are logged and never propagated.
package listing

import (
	"context"
	"log"
	"os"

	"github.com/distbuild/importd/internal/run"
)

// Refresher invokes the listing-refresh command.
type Refresher struct {
	// Cmd is the refresh command; empty disables refreshing.
	Cmd string

	// Location is passed to the command as its single argument, typically
	// the listing file the command rewrites.
	Location string

	Logger *log.Logger
}

// NewRefresher returns a Refresher for the given command and location.
func NewRefresher(cmd, location string, logger *log.Logger) *Refresher {
	if logger == nil {
		logger = log.New(os.Stderr, "[listing] ", log.LstdFlags)
	}
	return &Refresher{Cmd: cmd, Location: location, Logger: logger}
}

// Refresh runs the refresh command. Best effort: failures are logged only.
func (r *Refresher) Refresh(ctx context.Context) {
	if r.Cmd == "" {
		return
	}
	if _, err := run.Output(ctx, "", r.Cmd, r.Location); err != nil {
		r.Logger.Printf("listing refresh failed: %v", err)
	}
}
