package importer

// BranchCommits maps processed branch names to the commit each one ended up
// at, in processing order. Order matters: the synchronizer tries
// fast-forward candidates in this order and falls back to the first entry,
// and Go's built-in maps would not preserve it.
type BranchCommits struct {
	order   []string
	commits map[string]string
}

// NewBranchCommits returns an empty BranchCommits.
func NewBranchCommits() *BranchCommits {
	return &BranchCommits{commits: make(map[string]string)}
}

// Set records the commit for branch. The first Set of a branch fixes its
// position; later Sets only update the commit.
func (b *BranchCommits) Set(branch, commit string) {
	if _, ok := b.commits[branch]; !ok {
		b.order = append(b.order, branch)
	}
	b.commits[branch] = commit
}

// Get returns the commit recorded for branch.
func (b *BranchCommits) Get(branch string) (string, bool) {
	c, ok := b.commits[branch]
	return c, ok
}

// Len returns the number of recorded branches.
func (b *BranchCommits) Len() int {
	return len(b.order)
}

// Branches returns the branch names in processing order.
func (b *BranchCommits) Branches() []string {
	out := make([]string, len(b.order))
	copy(out, b.order)
	return out
}

// First returns the earliest recorded branch, or "" when empty.
func (b *BranchCommits) First() string {
	if len(b.order) == 0 {
		return ""
	}
	return b.order[0]
}

// Map returns a plain map copy for callers that only need lookups.
func (b *BranchCommits) Map() map[string]string {
	out := make(map[string]string, len(b.commits))
	for k, v := range b.commits {
		out[k] = v
	}
	return out
}
