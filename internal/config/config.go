// Package config holds the bumpdiff tool configuration: built-in defaults,
// overlaid by an optional bumpdiff.toml, overlaid by CLI flags in cmd.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config drives one bumpdiff run.
type Config struct {
	// RepoName is the deployment project's name; it keys the top-level
	// mirror directory and titles the report.
	RepoName string `toml:"repo_name"`
	// RepoURL is the deployment project's git URL.
	RepoURL string `toml:"repo_url"`

	// MirrorRoot is the directory holding all repository mirrors. A leading
	// "~/" expands to the user's home directory.
	MirrorRoot string `toml:"mirror_root"`

	// RoleRequirementsFile is the path, inside the deployment repo, of the
	// role pin manifest.
	RoleRequirementsFile string `toml:"role_requirements_file"`
	// PackagesDir is the directory, inside the deployment repo, holding the
	// project pin manifests.
	PackagesDir string `toml:"packages_dir"`

	Update        bool `toml:"update"`
	SkipRoles     bool `toml:"skip_roles"`
	SkipProjects  bool `toml:"skip_projects"`
	IncludeMerges bool `toml:"include_merges"`
	Strict        bool `toml:"strict"`
	ReleaseNotes  bool `toml:"release_notes"`

	// Workers bounds the parallel per-pin pipelines.
	Workers int `toml:"workers"`

	// NetworkTimeoutSec bounds each clone or fetch; zero disables the bound.
	NetworkTimeoutSec float64 `toml:"network_timeout_sec"`
}

// Default returns the configuration for diffing openstack-ansible, the
// deployment project this tool grew up around.
func Default() Config {
	return Config{
		RepoName:             "openstack-ansible",
		RepoURL:              "https://opendev.org/openstack/openstack-ansible",
		MirrorRoot:           "~/.bumpdiff",
		RoleRequirementsFile: "ansible-role-requirements.yml",
		PackagesDir:          "playbooks/defaults/repo_packages",
		Workers:              1,
		NetworkTimeoutSec:    300,
	}
}

// Load overlays the TOML file at path onto the defaults. An empty path or a
// missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// Validate checks the fields a run cannot proceed without and normalizes the
// mirror root to an absolute path.
func (c *Config) Validate() error {
	if c.RepoName == "" {
		return fmt.Errorf("repo_name must not be empty")
	}
	if c.RepoURL == "" {
		return fmt.Errorf("repo_url must not be empty")
	}
	if c.Workers < 1 {
		c.Workers = 1
	}

	root, err := expandHome(c.MirrorRoot)
	if err != nil {
		return fmt.Errorf("resolving mirror root: %w", err)
	}
	c.MirrorRoot = root
	return nil
}

// NetworkTimeout returns the clone/fetch bound as a duration.
func (c *Config) NetworkTimeout() time.Duration {
	return time.Duration(c.NetworkTimeoutSec * float64(time.Second))
}

func expandHome(path string) (string, error) {
	if path == "~" || len(path) >= 2 && path[:2] == "~/" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}
