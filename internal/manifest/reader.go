// Package manifest extracts pin declarations from a deployment repository as
// they existed at a given revision. All reads go through the object store of
// a mirror; no working tree is ever checked out or mutated.
package manifest

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/bumpdiff/bumpdiff/internal/mirror"
	"github.com/bumpdiff/bumpdiff/internal/models"
)

// ReadRoles returns the role pins declared in roleFile at revision. A missing
// file means no role pins were declared at that point in history and yields
// an empty set, not an error.
func ReadRoles(m *mirror.Mirror, revision, roleFile string) (models.PinSet, error) {
	tree, err := treeAt(m, revision)
	if err != nil {
		return nil, err
	}

	data, ok, err := blob(tree, roleFile)
	if err != nil {
		return nil, err
	}
	if !ok {
		slog.Debug("no role manifest at revision", "mirror", m.Name, "revision", revision, "file", roleFile)
		return models.PinSet{}, nil
	}

	pins, err := parseRolePins(data)
	if err != nil {
		return nil, models.Scoped(models.FailureManifestUnreadable, m.Name,
			fmt.Errorf("parsing %s at %s: %w", roleFile, revision, err))
	}
	return pins, nil
}

// ReadProjects merges the project pins from every YAML file under dir at
// revision. A missing directory yields an empty set.
func ReadProjects(m *mirror.Mirror, revision, dir string) (models.PinSet, error) {
	tree, err := treeAt(m, revision)
	if err != nil {
		return nil, err
	}

	sub, err := tree.Tree(dir)
	if err != nil {
		if errors.Is(err, object.ErrDirectoryNotFound) {
			slog.Debug("no project manifest directory at revision", "mirror", m.Name, "revision", revision, "dir", dir)
			return models.PinSet{}, nil
		}
		return nil, fmt.Errorf("reading %s at %s: %w", dir, revision, err)
	}

	merged := models.PinSet{}
	for _, entry := range sub.Entries {
		if entry.Mode.IsFile() && isYAML(entry.Name) {
			data, ok, err := blob(sub, entry.Name)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			pins, err := parseProjectPins(data)
			if err != nil {
				return nil, models.Scoped(models.FailureManifestUnreadable, m.Name,
					fmt.Errorf("parsing %s/%s at %s: %w", dir, entry.Name, revision, err))
			}
			for name, pin := range pins {
				merged[name] = pin
			}
		}
	}
	return merged, nil
}

func treeAt(m *mirror.Mirror, revision string) (*object.Tree, error) {
	hash, err := m.Repo.ResolveRevision(plumbing.Revision(revision))
	if err != nil {
		return nil, models.Scoped(models.FailureRevisionUnresolvable, m.Name,
			fmt.Errorf("resolving %q: %w", revision, err))
	}
	commit, err := m.Repo.CommitObject(*hash)
	if err != nil {
		return nil, models.Scoped(models.FailureRevisionUnresolvable, m.Name,
			fmt.Errorf("loading commit %s: %w", hash, err))
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("loading tree of %s: %w", hash, err)
	}
	return tree, nil
}

// blob reads one file from a tree. The second return is false when the file
// does not exist at that revision.
func blob(tree *object.Tree, path string) ([]byte, bool, error) {
	f, err := tree.File(path)
	if err != nil {
		if errors.Is(err, object.ErrFileNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("reading %s: %w", path, err)
	}
	contents, err := f.Contents()
	if err != nil {
		return nil, false, fmt.Errorf("reading %s: %w", path, err)
	}
	return []byte(contents), true, nil
}

func isYAML(name string) bool {
	return strings.HasSuffix(name, ".yml") || strings.HasSuffix(name, ".yaml")
}
