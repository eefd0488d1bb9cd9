package manifest

import (
	"fmt"
	"log/slog"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/bumpdiff/bumpdiff/internal/models"
)

// The deployment project declares pins in two shapes. Role requirements are a
// YAML list of entries naming a role, its source repository and a version.
// Project pins are flat YAML mappings using "<name>_git_repo" and
// "<name>_git_install_branch" key pairs. Both parsers normalize into a PinSet
// so nothing downstream branches on manifest shape.

const (
	repoKeySuffix     = "_git_repo"
	revisionKeySuffix = "_git_install_branch"

	// Roles without an explicit version pin track the tip of their repo.
	defaultRoleRevision = "HEAD"
)

type roleEntry struct {
	Name    string `yaml:"name"`
	Src     string `yaml:"src"`
	Version string `yaml:"version"`
}

// parseRolePins parses the role-requirements list format.
func parseRolePins(data []byte) (models.PinSet, error) {
	var entries []roleEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("role manifest: %w", err)
	}

	pins := models.PinSet{}
	for _, e := range entries {
		if e.Name == "" || e.Src == "" {
			slog.Warn("skipping role entry without name or src", "name", e.Name, "src", e.Src)
			continue
		}
		version := e.Version
		if version == "" {
			version = defaultRoleRevision
		}
		pins[e.Name] = models.PinnedRevision{RepoURL: e.Src, Revision: version}
	}
	return pins, nil
}

// parseProjectPins parses the flat "<name>_git_repo" key-pair format.
func parseProjectPins(data []byte) (models.PinSet, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("project manifest: %w", err)
	}

	pins := models.PinSet{}
	for key, value := range doc {
		if !strings.HasSuffix(key, repoKeySuffix) {
			continue
		}
		name := strings.TrimSuffix(key, repoKeySuffix)

		url, ok := value.(string)
		if !ok || url == "" {
			slog.Warn("skipping project pin with non-string repo URL", "project", name)
			continue
		}
		revision, ok := doc[name+revisionKeySuffix].(string)
		if !ok || revision == "" {
			slog.Warn("skipping project pin without install branch", "project", name)
			continue
		}
		pins[name] = models.PinnedRevision{RepoURL: url, Revision: revision}
	}
	return pins, nil
}
