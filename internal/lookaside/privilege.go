package lookaside

import (
	"fmt"
	"os/user"
	"strconv"
	"syscall"

	"golang.org/x/sys/unix"
)

// withGroup runs fn with the effective group ID switched to the named
// group, restoring the original GID on every exit path. An empty group
// name runs fn unchanged. The lookaside tree is owned by the web server's
// group, so new entries must be written as that group.
func withGroup(group string, fn func() error) error {
	if group == "" {
		return fn()
	}

	grp, err := user.LookupGroup(group)
	if err != nil {
		return fmt.Errorf("failed to look up group %q: %w", group, err)
	}
	gid, err := strconv.Atoi(grp.Gid)
	if err != nil {
		return fmt.Errorf("unexpected gid %q for group %q: %w", grp.Gid, group, err)
	}

	// syscall.Setegid rather than x/sys: on Linux the set-id wrappers
	// live in the standard library only, and since Go 1.16 they apply to
	// all threads of the process.
	oldGID := unix.Getegid()
	if err := syscall.Setegid(gid); err != nil {
		return fmt.Errorf("failed to switch to group %q: %w", group, err)
	}
	defer func() {
		if err := syscall.Setegid(oldGID); err != nil {
			// Running with the wrong group is worse than stopping.
			panic(fmt.Sprintf("failed to restore gid %d: %v", oldGID, err))
		}
	}()

	return fn()
}
