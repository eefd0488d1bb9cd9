// Package mirror maintains local bare mirrors of the repositories referenced
// by pin manifests. Mirrors are created lazily, reused across runs and only
// re-fetched when the caller asks for it.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"

	"github.com/bumpdiff/bumpdiff/internal/models"
)

// Identity names a remote repository. Name keys the on-disk location, URL is
// where clones and fetches go.
type Identity struct {
	Name string
	URL  string
}

// Mirror is a ready-to-read local mirror of one remote repository.
type Mirror struct {
	Name string
	URL  string
	Path string
	Repo *git.Repository
}

// Manager creates and refreshes mirrors under a single root directory.
type Manager struct {
	root    string
	timeout time.Duration

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewManager returns a Manager storing mirrors under root. networkTimeout
// bounds each clone or fetch; zero means no bound.
func NewManager(root string, networkTimeout time.Duration) *Manager {
	return &Manager{
		root:    root,
		timeout: networkTimeout,
		locks:   make(map[string]*sync.Mutex),
	}
}

// PathFor derives the mirror directory for an identity. The derivation is
// pure: the same identity always maps to the same path, so repeated runs
// reuse the mirror.
func (m *Manager) PathFor(id Identity) string {
	return filepath.Join(m.root, sanitizeName(id.Name))
}

// Lock acquires the exclusive section for one mirror. Callers that read a
// mirror concurrently with Ensure must hold its lock for the duration of
// ensure+read so a fetch never races a read.
func (m *Manager) Lock(name string) func() {
	m.mu.Lock()
	l, ok := m.locks[name]
	if !ok {
		l = &sync.Mutex{}
		m.locks[name] = l
	}
	m.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// Ensure guarantees a local mirror of id exists and returns it. A missing
// mirror is always cloned; an existing one is fetched only when update is
// set. Any clone or fetch failure (including a network timeout) is reported
// as a mirror_unavailable failure scoped to id.Name.
func (m *Manager) Ensure(ctx context.Context, id Identity, update bool) (*Mirror, error) {
	path := m.PathFor(id)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		repo, err := m.clone(ctx, id, path)
		if err != nil {
			return nil, models.Scoped(models.FailureMirrorUnavailable, id.Name, err)
		}
		return &Mirror{Name: id.Name, URL: id.URL, Path: path, Repo: repo}, nil
	}

	repo, err := git.PlainOpen(path)
	if err != nil {
		return nil, models.Scoped(models.FailureMirrorUnavailable, id.Name,
			fmt.Errorf("opening mirror %s: %w", path, err))
	}

	if update {
		if err := m.fetch(ctx, id, repo); err != nil {
			return nil, models.Scoped(models.FailureMirrorUnavailable, id.Name, err)
		}
	}

	return &Mirror{Name: id.Name, URL: id.URL, Path: path, Repo: repo}, nil
}

func (m *Manager) clone(ctx context.Context, id Identity, path string) (*git.Repository, error) {
	slog.Debug("cloning mirror", "name", id.Name, "url", id.URL, "dest", path)

	ctx, cancel := m.bound(ctx)
	defer cancel()

	if err := os.MkdirAll(m.root, 0755); err != nil {
		return nil, fmt.Errorf("creating mirror root: %w", err)
	}

	repo, err := git.PlainCloneContext(ctx, path, true, &git.CloneOptions{
		URL:    id.URL,
		Mirror: true,
		Tags:   git.AllTags,
	})
	if err != nil {
		// Leave no half-cloned directory behind, otherwise the next run
		// would open it and believe the mirror is usable.
		os.RemoveAll(path)
		return nil, fmt.Errorf("cloning %s: %w", id.URL, err)
	}
	return repo, nil
}

func (m *Manager) fetch(ctx context.Context, id Identity, repo *git.Repository) error {
	slog.Debug("fetching mirror", "name", id.Name, "url", id.URL)

	ctx, cancel := m.bound(ctx)
	defer cancel()

	err := repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: git.DefaultRemoteName,
		RefSpecs: []config.RefSpec{
			"+refs/heads/*:refs/heads/*",
			"+refs/tags/*:refs/tags/*",
		},
		Force: true,
		Tags:  git.AllTags,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("fetching %s: %w", id.URL, err)
	}
	return nil
}

func (m *Manager) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, m.timeout)
}

// sanitizeName flattens a repository name into a single path component.
func sanitizeName(name string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", ":", "_", " ", "_")
	return r.Replace(name)
}
