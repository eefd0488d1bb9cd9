package models

// RevisionNone is the sentinel revision for the missing side of an added or
// removed pin.
const RevisionNone = "none"

// PinnedRevision is one manifest-declared pin: the sub-project's repository URL
// and the exact revision the deployment project requires from it.
type PinnedRevision struct {
	RepoURL  string `json:"repo_url"`
	Revision string `json:"revision"`
}

// PinSet holds every pin visible in one manifest snapshot, keyed by sub-project
// name. It is built once per (repository, revision) pair and read-only after.
type PinSet map[string]PinnedRevision

// Equal reports whether two pin-sets declare the same pins at the same
// revisions. Repository URLs are compared too: a pin whose source moved is a
// real change even if the revision string is identical.
func (s PinSet) Equal(other PinSet) bool {
	if len(s) != len(other) {
		return false
	}
	for name, pin := range s {
		if o, ok := other[name]; !ok || o != pin {
			return false
		}
	}
	return true
}

// ChangeKind classifies a pin difference between two snapshots.
type ChangeKind string

const (
	ChangeAdded   ChangeKind = "added"
	ChangeRemoved ChangeKind = "removed"
	ChangeUpdated ChangeKind = "updated"
)

// PinChange is one entry of a pin-set diff. Old is nil for additions, New is
// nil for removals; at least one side is always set.
type PinChange struct {
	Name string
	Kind ChangeKind
	Old  *PinnedRevision
	New  *PinnedRevision
}

// RepoURL returns the repository URL declared for this pin, preferring the new
// side since removed pins only carry an old declaration.
func (c PinChange) RepoURL() string {
	if c.New != nil {
		return c.New.RepoURL
	}
	if c.Old != nil {
		return c.Old.RepoURL
	}
	return ""
}
