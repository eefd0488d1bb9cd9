// Package revrange resolves pin revisions against a sub-project mirror and
// enumerates the commits between them.
package revrange

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/bumpdiff/bumpdiff/internal/mirror"
	"github.com/bumpdiff/bumpdiff/internal/models"
)

const shortIDLen = 7

// Resolver turns pin changes into resolved commit ranges.
type Resolver struct {
	// IncludeMerges keeps merge commits in enumerated ranges. They are
	// hidden by default since a bump report cares about the changes a merge
	// carried, not the merge itself.
	IncludeMerges bool

	// Strict treats diverged history (neither revision reachable from the
	// other) as a per-project failure instead of a best-effort range.
	Strict bool
}

// Resolve computes the ProjectDiffResult for one changed pin against the
// sub-project's mirror. Added and removed pins get sentinel revisions and no
// commit enumeration; an added pin's full history would be unbounded and says
// nothing about the bump itself.
func (r *Resolver) Resolve(m *mirror.Mirror, change models.PinChange) (*models.ProjectDiffResult, error) {
	result := &models.ProjectDiffResult{
		Name:        change.Name,
		RepoURL:     change.RepoURL(),
		Kind:        change.Kind,
		OldRevision: models.RevisionNone,
		NewRevision: models.RevisionNone,
		Direction:   models.DirectionForward,
	}

	switch change.Kind {
	case models.ChangeAdded:
		result.NewRevision = short(change.New.Revision)
		return result, nil
	case models.ChangeRemoved:
		result.OldRevision = short(change.Old.Revision)
		return result, nil
	}

	oldCommit, err := r.commitAt(m, change.Name, change.Old.Revision)
	if err != nil {
		return nil, err
	}
	newCommit, err := r.commitAt(m, change.Name, change.New.Revision)
	if err != nil {
		return nil, err
	}

	result.OldRevision = short(oldCommit.Hash.String())
	result.NewRevision = short(newCommit.Hash.String())

	commits, direction, err := r.rangeBetween(m, change.Name, oldCommit, newCommit)
	if err != nil {
		return nil, err
	}
	result.Direction = direction
	result.Commits = commits
	result.CommitCount = len(commits)
	return result, nil
}

// Order reports whether refs a and b are supplied in reverse chronological
// order on the given repository, by testing ancestry in both directions. When
// the two refs have diverged the supplied order is kept.
func (r *Resolver) Order(m *mirror.Mirror, a, b string) (swapped bool, err error) {
	ca, err := r.commitAt(m, m.Name, a)
	if err != nil {
		return false, err
	}
	cb, err := r.commitAt(m, m.Name, b)
	if err != nil {
		return false, err
	}
	if ca.Hash == cb.Hash {
		return false, nil
	}

	forward, err := ca.IsAncestor(cb)
	if err != nil {
		return false, fmt.Errorf("testing ancestry in %s: %w", m.Name, err)
	}
	if forward {
		return false, nil
	}
	backward, err := cb.IsAncestor(ca)
	if err != nil {
		return false, fmt.Errorf("testing ancestry in %s: %w", m.Name, err)
	}
	if backward {
		return true, nil
	}

	slog.Warn("refs have diverged, keeping supplied order", "mirror", m.Name, "old", a, "new", b)
	return false, nil
}

// Commits enumerates the range between two refs of a repository, newest
// first. Used for the deployment project's own commit list.
func (r *Resolver) Commits(m *mirror.Mirror, oldRev, newRev string) ([]models.CommitRecord, error) {
	oldCommit, err := r.commitAt(m, m.Name, oldRev)
	if err != nil {
		return nil, err
	}
	newCommit, err := r.commitAt(m, m.Name, newRev)
	if err != nil {
		return nil, err
	}
	return r.enumerate(newCommit, oldCommit)
}

func (r *Resolver) rangeBetween(m *mirror.Mirror, name string, oldCommit, newCommit *object.Commit) ([]models.CommitRecord, models.Direction, error) {
	if oldCommit.Hash == newCommit.Hash {
		return nil, models.DirectionForward, nil
	}

	forward, err := oldCommit.IsAncestor(newCommit)
	if err != nil {
		return nil, "", fmt.Errorf("testing ancestry in %s: %w", name, err)
	}
	if forward {
		commits, err := r.enumerate(newCommit, oldCommit)
		return commits, models.DirectionForward, err
	}

	reversed, err := newCommit.IsAncestor(oldCommit)
	if err != nil {
		return nil, "", fmt.Errorf("testing ancestry in %s: %w", name, err)
	}
	if reversed {
		// A rollback: enumerate what the bump lost.
		commits, err := r.enumerate(oldCommit, newCommit)
		return commits, models.DirectionReversed, err
	}

	if r.Strict {
		return nil, "", models.Scoped(models.FailureAmbiguousDirection, name,
			fmt.Errorf("revisions %s and %s have diverged", short(oldCommit.Hash.String()), short(newCommit.Hash.String())))
	}

	slog.Warn("pin revisions have diverged, range is best-effort",
		"project", name,
		"old", short(oldCommit.Hash.String()),
		"new", short(newCommit.Hash.String()))
	commits, err := r.enumerate(newCommit, oldCommit)
	return commits, models.DirectionDiverged, err
}

// enumerate lists the commits reachable from tip but not from base, newest
// first by committer time. Matches source-control "base..tip" semantics: every
// ancestor of base is excluded, not just the first-parent chain.
func (r *Resolver) enumerate(tip, base *object.Commit) ([]models.CommitRecord, error) {
	excluded := make(map[plumbing.Hash]bool)
	err := object.NewCommitPreorderIter(base, nil, nil).ForEach(func(c *object.Commit) error {
		excluded[c.Hash] = true
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking history of %s: %w", short(base.Hash.String()), err)
	}

	var records []models.CommitRecord
	iter := object.NewCommitIterCTime(tip, excluded, nil)
	err = iter.ForEach(func(c *object.Commit) error {
		if c.NumParents() > 1 && !r.IncludeMerges {
			return nil
		}
		records = append(records, models.CommitRecord{
			ShortID: short(c.Hash.String()),
			Author:  c.Author.Name,
			Subject: subject(c.Message),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking history of %s: %w", short(tip.Hash.String()), err)
	}
	return records, nil
}

func (r *Resolver) commitAt(m *mirror.Mirror, name, revision string) (*object.Commit, error) {
	hash, err := m.Repo.ResolveRevision(plumbing.Revision(revision))
	if err != nil {
		return nil, models.Scoped(models.FailureRevisionUnresolvable, name,
			fmt.Errorf("revision %q not found in mirror of %s: %w", revision, m.Name, err))
	}
	commit, err := m.Repo.CommitObject(*hash)
	if err != nil {
		return nil, models.Scoped(models.FailureRevisionUnresolvable, name,
			fmt.Errorf("loading commit %s: %w", hash, err))
	}
	return commit, nil
}

func short(revision string) string {
	if len(revision) > shortIDLen && isHex(revision) {
		return revision[:shortIDLen]
	}
	return revision
}

func subject(message string) string {
	line, _, _ := strings.Cut(message, "\n")
	return strings.TrimSpace(line)
}

func isHex(s string) bool {
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
