// Package distgit provisions dist-git repositories and their branches by
// invoking the site's provisioning commands.
package distgit

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/distbuild/importd/internal/run"
)

// Exit code the provisioning commands use to report that the repository or
// branch already exists. Re-provisioning is idempotent, so this is success.
const exitAlreadyExists = 128

// SetupState is the outcome of one provisioning call.
type SetupState int

const (
	// StateCreated means the repository or branch was newly created.
	StateCreated SetupState = iota
	// StateExists means it already existed and was left untouched.
	StateExists
)

func (s SetupState) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateExists:
		return "exists"
	default:
		return "unknown"
	}
}

// Provisioner creates repositories and branches on the dist-git side.
type Provisioner struct {
	// SetupRepoCmd is the repository-creation command. It is invoked with
	// the repository name as its single argument.
	SetupRepoCmd string

	// MkBranchCmd is the branch-creation command. It is invoked with the
	// branch name and the repository name.
	MkBranchCmd string

	Logger *log.Logger
}

// NewProvisioner returns a Provisioner running the given commands.
func NewProvisioner(setupRepoCmd, mkBranchCmd string, logger *log.Logger) *Provisioner {
	if logger == nil {
		logger = log.New(os.Stderr, "[distgit] ", log.LstdFlags)
	}
	return &Provisioner{
		SetupRepoCmd: setupRepoCmd,
		MkBranchCmd:  mkBranchCmd,
		Logger:       logger,
	}
}

// CreateRepo ensures the named repository exists.
func (p *Provisioner) CreateRepo(ctx context.Context, repoName string) (SetupState, error) {
	return p.provision(ctx, p.SetupRepoCmd, repoName)
}

// CreateBranch ensures branch exists in the named repository.
func (p *Provisioner) CreateBranch(ctx context.Context, branch, repoName string) (SetupState, error) {
	return p.provision(ctx, p.MkBranchCmd, branch, repoName)
}

func (p *Provisioner) provision(ctx context.Context, cmd string, args ...string) (SetupState, error) {
	out, err := run.Output(ctx, "", cmd, args...)
	if err == nil {
		return StateCreated, nil
	}
	if run.ExitCode(err) == exitAlreadyExists {
		return StateExists, nil
	}
	return 0, fmt.Errorf("provisioning command failed: %w\n%s", err, out)
}

// SetupRepo ensures the repository and every requested branch exist.
// Already-existing repositories and branches are success; any other
// provisioning failure aborts immediately.
func (p *Provisioner) SetupRepo(ctx context.Context, repoName string, branches []string) error {
	state, err := p.CreateRepo(ctx, repoName)
	if err != nil {
		return fmt.Errorf("failed to set up repository %s: %w", repoName, err)
	}
	p.Logger.Printf("repository %s: %s", repoName, state)

	for _, branch := range branches {
		state, err := p.CreateBranch(ctx, branch, repoName)
		if err != nil {
			return fmt.Errorf("failed to create branch %s in %s: %w", branch, repoName, err)
		}
		p.Logger.Printf("branch %s in %s: %s", branch, repoName, state)
	}
	return nil
}
