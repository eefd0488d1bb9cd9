package models

import "fmt"

// FailureKind identifies the category of a scoped per-project failure.
type FailureKind string

const (
	// Clone or fetch of a mirror failed (network, auth, disk, timeout).
	FailureMirrorUnavailable FailureKind = "mirror_unavailable"

	// A manifest existed at the revision but could not be parsed.
	FailureManifestUnreadable FailureKind = "manifest_unreadable"

	// A pinned revision does not exist in the sub-project's mirror history.
	FailureRevisionUnresolvable FailureKind = "revision_unresolvable"

	// Neither revision is an ancestor of the other. Only reported as a
	// failure in strict mode; otherwise the range is computed best-effort.
	FailureAmbiguousDirection FailureKind = "ambiguous_direction"
)

// ScopedError is a failure attributable to a single sub-project. The differ
// converts these into ProjectFailure entries and keeps going.
type ScopedError struct {
	Kind FailureKind
	Name string
	Err  error
}

func (e *ScopedError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Name, e.Kind, e.Err)
}

func (e *ScopedError) Unwrap() error {
	return e.Err
}

// Scoped wraps err as a ScopedError for the named sub-project.
func Scoped(kind FailureKind, name string, err error) *ScopedError {
	return &ScopedError{Kind: kind, Name: name, Err: err}
}
