package manifest_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/bumpdiff/bumpdiff/internal/manifest"
	"github.com/bumpdiff/bumpdiff/internal/mirror"
)

type fixtureRepo struct {
	t    *testing.T
	dir  string
	repo *git.Repository
	seq  int
}

func newFixtureRepo(t *testing.T) *fixtureRepo {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("initializing fixture repo: %v", err)
	}
	return &fixtureRepo{t: t, dir: dir, repo: repo}
}

// commit writes the given files and commits them. Committer times increase
// monotonically so range ordering is deterministic.
func (f *fixtureRepo) commit(message string, files map[string]string) string {
	f.t.Helper()
	wt, err := f.repo.Worktree()
	if err != nil {
		f.t.Fatalf("opening worktree: %v", err)
	}
	for name, content := range files {
		path := filepath.Join(f.dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			f.t.Fatalf("creating %s: %v", filepath.Dir(name), err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			f.t.Fatalf("writing %s: %v", name, err)
		}
		if _, err := wt.Add(name); err != nil {
			f.t.Fatalf("staging %s: %v", name, err)
		}
	}
	f.seq++
	when := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(f.seq) * time.Minute)
	sig := &object.Signature{Name: "Fixture Author", Email: "fixture@example.org", When: when}
	hash, err := wt.Commit(message, &git.CommitOptions{Author: sig, Committer: sig})
	if err != nil {
		f.t.Fatalf("committing %q: %v", message, err)
	}
	return hash.String()
}

func (f *fixtureRepo) mirror(name string) *mirror.Mirror {
	return &mirror.Mirror{Name: name, Path: f.dir, Repo: f.repo}
}

func TestReadRolesAtRevision(t *testing.T) {
	f := newFixtureRepo(t)

	oldRev := f.commit("pin os_nova", map[string]string{
		"ansible-role-requirements.yml": `---
- name: os_nova
  src: https://opendev.org/openstack/openstack-ansible-os_nova
  version: aaaa111
`,
	})
	newRev := f.commit("bump os_nova", map[string]string{
		"ansible-role-requirements.yml": `---
- name: os_nova
  src: https://opendev.org/openstack/openstack-ansible-os_nova
  version: bbbb222
`,
	})

	m := f.mirror("deploy")

	oldPins, err := manifest.ReadRoles(m, oldRev, "ansible-role-requirements.yml")
	if err != nil {
		t.Fatalf("ReadRoles(old) failed: %v", err)
	}
	if oldPins["os_nova"].Revision != "aaaa111" {
		t.Errorf("old os_nova revision = %q", oldPins["os_nova"].Revision)
	}

	newPins, err := manifest.ReadRoles(m, newRev, "ansible-role-requirements.yml")
	if err != nil {
		t.Fatalf("ReadRoles(new) failed: %v", err)
	}
	if newPins["os_nova"].Revision != "bbbb222" {
		t.Errorf("new os_nova revision = %q", newPins["os_nova"].Revision)
	}
}

func TestReadRolesMissingFileIsEmpty(t *testing.T) {
	f := newFixtureRepo(t)
	rev := f.commit("no manifests yet", map[string]string{"README.rst": "hello\n"})

	pins, err := manifest.ReadRoles(f.mirror("deploy"), rev, "ansible-role-requirements.yml")
	if err != nil {
		t.Fatalf("missing manifest must not be an error, got: %v", err)
	}
	if len(pins) != 0 {
		t.Errorf("expected empty pin-set, got %v", pins)
	}
}

func TestReadProjectsMergesDirectory(t *testing.T) {
	f := newFixtureRepo(t)
	rev := f.commit("pin projects", map[string]string{
		"playbooks/defaults/repo_packages/openstack_services.yml": `---
nova_git_repo: https://opendev.org/openstack/nova
nova_git_install_branch: abc123
`,
		"playbooks/defaults/repo_packages/other_services.yml": `---
glance_git_repo: https://opendev.org/openstack/glance
glance_git_install_branch: def456
`,
		"playbooks/defaults/repo_packages/notes.txt": "not a manifest\n",
	})

	pins, err := manifest.ReadProjects(f.mirror("deploy"), rev, "playbooks/defaults/repo_packages")
	if err != nil {
		t.Fatalf("ReadProjects failed: %v", err)
	}
	if len(pins) != 2 {
		t.Fatalf("expected pins merged from both YAML files, got %v", pins)
	}
	if pins["nova"].Revision != "abc123" || pins["glance"].Revision != "def456" {
		t.Errorf("unexpected pins: %v", pins)
	}
}

func TestReadProjectsMissingDirIsEmpty(t *testing.T) {
	f := newFixtureRepo(t)
	rev := f.commit("no packages dir", map[string]string{"README.rst": "hello\n"})

	pins, err := manifest.ReadProjects(f.mirror("deploy"), rev, "playbooks/defaults/repo_packages")
	if err != nil {
		t.Fatalf("missing directory must not be an error, got: %v", err)
	}
	if len(pins) != 0 {
		t.Errorf("expected empty pin-set, got %v", pins)
	}
}

func TestReadRolesUnresolvableRevision(t *testing.T) {
	f := newFixtureRepo(t)
	f.commit("initial", map[string]string{"README.rst": "hello\n"})

	_, err := manifest.ReadRoles(f.mirror("deploy"), "doesnotexist", "ansible-role-requirements.yml")
	if err == nil {
		t.Fatal("expected an error for an unresolvable revision")
	}
}
