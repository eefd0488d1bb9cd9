package differ_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/bumpdiff/bumpdiff/internal/config"
	"github.com/bumpdiff/bumpdiff/internal/differ"
	"github.com/bumpdiff/bumpdiff/internal/models"
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

// scenario builds a deployment repo with two snapshots:
//
//	old: role os_nova@n1, projects nova@n1, broken@x1
//	new: role os_nova@n2, projects nova@n2, broken@x2, cinder added
//
// nova's repository exists and gained one commit; broken points at a
// repository that cannot be cloned.
type scenario struct {
	cfg              config.Config
	oldRev, newRev   string
	novaOld, novaNew string
}

func buildScenario(t *testing.T) scenario {
	t.Helper()

	nova := newFixtureRepo(t)
	n1 := nova.commit("nova base", map[string]string{"nova.py": "v1\n"})
	n2 := nova.commit("nova fix", map[string]string{"nova.py": "v2\n"})

	cinder := newFixtureRepo(t)
	c1 := cinder.commit("cinder base", map[string]string{"cinder.py": "v1\n"})

	brokenURL := filepath.Join(t.TempDir(), "gone")

	deploy := newFixtureRepo(t)
	oldRev := deploy.commit("initial pins", map[string]string{
		"ansible-role-requirements.yml": fmt.Sprintf(`---
- name: os_nova
  src: %s
  version: %s
`, nova.dir, n1),
		"playbooks/defaults/repo_packages/openstack_services.yml": fmt.Sprintf(`---
nova_git_repo: %s
nova_git_install_branch: %s
broken_git_repo: %s
broken_git_install_branch: xxx111
`, nova.dir, n1, brokenURL),
	})
	newRev := deploy.commit("bump pins", map[string]string{
		"ansible-role-requirements.yml": fmt.Sprintf(`---
- name: os_nova
  src: %s
  version: %s
`, nova.dir, n2),
		"playbooks/defaults/repo_packages/openstack_services.yml": fmt.Sprintf(`---
nova_git_repo: %s
nova_git_install_branch: %s
broken_git_repo: %s
broken_git_install_branch: xxx222
cinder_git_repo: %s
cinder_git_install_branch: %s
`, nova.dir, n2, brokenURL, cinder.dir, c1),
	})

	cfg := config.Default()
	cfg.RepoName = "deploy"
	cfg.RepoURL = deploy.dir
	cfg.MirrorRoot = t.TempDir()
	cfg.Workers = 2
	cfg.NetworkTimeoutSec = 0

	return scenario{cfg: cfg, oldRev: oldRev, newRev: newRev, novaOld: n1, novaNew: n2}
}

func TestRunEndToEnd(t *testing.T) {
	s := buildScenario(t)

	result, err := differ.New(s.cfg).Run(context.Background(), s.oldRev, s.newRev)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.Meta.Swapped {
		t.Error("refs were in order, nothing to swap")
	}
	if len(result.DeploymentCommits) != 1 || result.DeploymentCommits[0].Subject != "bump pins" {
		t.Errorf("deployment commits = %+v", result.DeploymentCommits)
	}

	if len(result.Roles) != 1 {
		t.Fatalf("roles = %+v", result.Roles)
	}
	role := result.Roles[0]
	if role.Name != "os_nova" || role.Kind != models.ChangeUpdated || role.Direction != models.DirectionForward {
		t.Errorf("unexpected role result: %+v", role)
	}
	if role.CommitCount != 1 || role.Commits[0].Subject != "nova fix" {
		t.Errorf("role commit range = %+v", role.Commits)
	}

	// Name-sorted: cinder before nova; broken is in failures, not here.
	if len(result.Projects) != 2 {
		t.Fatalf("projects = %+v", result.Projects)
	}
	if result.Projects[0].Name != "cinder" || result.Projects[0].Kind != models.ChangeAdded {
		t.Errorf("expected cinder addition first, got %+v", result.Projects[0])
	}
	if result.Projects[0].OldRevision != models.RevisionNone || result.Projects[0].CommitCount != 0 {
		t.Errorf("added pin must carry no range: %+v", result.Projects[0])
	}
	if result.Projects[1].Name != "nova" || result.Projects[1].CommitCount != 1 {
		t.Errorf("expected nova update with one commit, got %+v", result.Projects[1])
	}

	if len(result.Failures) != 1 {
		t.Fatalf("failures = %+v", result.Failures)
	}
	if result.Failures[0].Name != "broken" || result.Failures[0].Kind != models.FailureMirrorUnavailable {
		t.Errorf("unexpected failure: %+v", result.Failures[0])
	}
}

func TestRunSwapsReversedRefs(t *testing.T) {
	s := buildScenario(t)

	forward, err := differ.New(s.cfg).Run(context.Background(), s.oldRev, s.newRev)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	swapped, err := differ.New(s.cfg).Run(context.Background(), s.newRev, s.oldRev)
	if err != nil {
		t.Fatalf("Run with reversed refs failed: %v", err)
	}

	if !swapped.Meta.Swapped {
		t.Error("reversed refs not detected")
	}
	if swapped.Meta.OldRevision != s.oldRev || swapped.Meta.NewRevision != s.newRev {
		t.Errorf("refs not swapped in meta: %+v", swapped.Meta)
	}
	if len(swapped.Projects) != len(forward.Projects) {
		t.Fatalf("swapped run found %d projects, forward %d", len(swapped.Projects), len(forward.Projects))
	}
	for i := range forward.Projects {
		if swapped.Projects[i].Name != forward.Projects[i].Name ||
			swapped.Projects[i].NewRevision != forward.Projects[i].NewRevision {
			t.Errorf("swapped run differs at %d: %+v vs %+v", i, swapped.Projects[i], forward.Projects[i])
		}
	}
}

func TestRunSkipsCategories(t *testing.T) {
	s := buildScenario(t)
	s.cfg.SkipProjects = true

	result, err := differ.New(s.cfg).Run(context.Background(), s.oldRev, s.newRev)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(result.Projects) != 0 || len(result.Failures) != 0 {
		t.Errorf("skipped projects still resolved: %+v %+v", result.Projects, result.Failures)
	}
	if len(result.Roles) != 1 {
		t.Errorf("roles should still be diffed: %+v", result.Roles)
	}
}

func TestRunFatalWithoutDeploymentMirror(t *testing.T) {
	cfg := config.Default()
	cfg.RepoName = "deploy"
	cfg.RepoURL = filepath.Join(t.TempDir(), "nowhere")
	cfg.MirrorRoot = t.TempDir()
	cfg.NetworkTimeoutSec = 0

	if _, err := differ.New(cfg).Run(context.Background(), "a", "b"); err == nil {
		t.Fatal("expected a fatal error when the deployment repo cannot be mirrored")
	}
}
