// Package relnotes collects the reno release notes published between two
// revisions of the deployment project.
package relnotes

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"slices"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"

	"github.com/bumpdiff/bumpdiff/internal/mirror"
)

// Notes renders the reno release notes for every version tagged between
// oldRef and newRef, newest release first, followed by the notes added since
// the latest release. Requires the reno tool on PATH; the mirror itself is
// never touched, all checkouts happen in a throwaway clone.
func Notes(ctx context.Context, m *mirror.Mirror, oldRef, newRef string) (string, error) {
	tags, err := sortedTags(m)
	if err != nil {
		return "", err
	}

	worktree, err := os.MkdirTemp("", "bumpdiff-relnotes-")
	if err != nil {
		return "", fmt.Errorf("creating scratch worktree: %w", err)
	}
	defer os.RemoveAll(worktree)

	if out, err := run(ctx, "", "git", "clone", "--quiet", "--shared", m.Path, worktree); err != nil {
		return "", fmt.Errorf("cloning scratch worktree: %w: %s", err, out)
	}

	oldTag, err := nearestTag(ctx, worktree, oldRef)
	if err != nil {
		return "", err
	}
	newTag, err := nearestTag(ctx, worktree, newRef)
	if err != nil {
		return "", err
	}

	between := tagsBetween(tags, oldTag, newTag)

	var notes strings.Builder

	// Notes created since the latest packaged release come from the new ref
	// itself.
	if out, err := run(ctx, worktree, "git", "checkout", "--force", "--quiet", newRef); err != nil {
		return "", fmt.Errorf("checking out %s: %w: %s", newRef, err, out)
	}
	out, err := run(ctx, worktree, "reno", "report", "--earliest-version", newTag)
	if err != nil {
		return "", fmt.Errorf("running reno for %s: %w", newTag, err)
	}
	notes.WriteString(out)

	// Then one report per packaged release, newest first.
	for i := len(between) - 1; i >= 0; i-- {
		version := between[i]
		if out, err := run(ctx, worktree, "git", "checkout", "--force", "--quiet", version); err != nil {
			return "", fmt.Errorf("checking out %s: %w: %s", version, err, out)
		}
		out, err := run(ctx, worktree, "reno", "report", "--branch", version, "--earliest-version", version)
		if err != nil {
			return "", fmt.Errorf("running reno for %s: %w", version, err)
		}
		// reno sometimes emits an empty report for a version it cannot
		// attribute notes to; only keep reports that mention the version.
		if strings.Contains(out, version) {
			notes.WriteString(out)
		}
	}

	return normalize(notes.String()), nil
}

func sortedTags(m *mirror.Mirror) ([]string, error) {
	iter, err := m.Repo.Tags()
	if err != nil {
		return nil, fmt.Errorf("listing tags: %w", err)
	}
	var tags []string
	_ = iter.ForEach(func(ref *plumbing.Reference) error {
		tags = append(tags, ref.Name().Short())
		return nil
	})
	slices.SortFunc(tags, CompareLoose)
	return fixTagOrder(tags), nil
}

// fixTagOrder moves each release's rc and beta tags in front of the final
// release tag, so iteration encounters pre-releases before the release they
// led to.
func fixTagOrder(tags []string) []string {
	ordered := make([]string, 0, len(tags))
	for _, tag := range tags {
		if !strings.Contains(tag, "rc") && !strings.Contains(tag, "b") {
			for _, pre := range tags {
				if pre != tag && strings.Contains(pre, tag) &&
					(strings.Contains(pre, "rc") || strings.Contains(pre, "b")) &&
					!slices.Contains(ordered, pre) {
					ordered = append(ordered, pre)
				}
			}
		}
		if !slices.Contains(ordered, tag) {
			ordered = append(ordered, tag)
		}
	}
	return ordered
}

func tagsBetween(tags []string, oldTag, newTag string) []string {
	from := slices.Index(tags, oldTag)
	to := slices.Index(tags, newTag)
	if from < 0 || to < 0 || from > to {
		return nil
	}
	return tags[from:to]
}

// nearestTag finds the tag cut on or before the given ref, with any
// "-<count>-g<sha>" describe suffix stripped.
func nearestTag(ctx context.Context, worktree, ref string) (string, error) {
	if out, err := run(ctx, worktree, "git", "checkout", "--force", "--quiet", ref); err != nil {
		return "", fmt.Errorf("checking out %s: %w: %s", ref, err, out)
	}
	out, err := run(ctx, worktree, "git", "describe")
	if err != nil {
		return "", fmt.Errorf("describing %s: %w: %s", ref, err, out)
	}
	tag := strings.TrimSpace(out)
	if i := strings.Index(tag, "-"); i >= 0 {
		tag = tag[:i]
	}
	return tag, nil
}

func run(ctx context.Context, dir string, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	return string(out), err
}

var (
	equalsRuns = regexp.MustCompile(`===+`)
	dashRuns   = regexp.MustCompile(`---+`)
)

// normalize reshapes reno's RST headings to fit under the report's own
// heading levels.
func normalize(notes string) string {
	notes = strings.ReplaceAll(notes,
		"=============\nRelease Notes\n=============", "")
	notes = equalsRuns.ReplaceAllStringFunc(notes, func(s string) string {
		return strings.Repeat("~", len(s))
	})
	notes = dashRuns.ReplaceAllStringFunc(notes, func(s string) string {
		return strings.Repeat("#", len(s))
	})
	return notes
}
