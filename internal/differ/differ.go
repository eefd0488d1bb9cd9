// Package differ wires the pipeline together: ensure mirrors, read manifest
// snapshots, diff pins and resolve each changed pin's commit range into one
// report.
package differ

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/bumpdiff/bumpdiff/internal/config"
	"github.com/bumpdiff/bumpdiff/internal/manifest"
	"github.com/bumpdiff/bumpdiff/internal/mirror"
	"github.com/bumpdiff/bumpdiff/internal/models"
	"github.com/bumpdiff/bumpdiff/internal/pindiff"
	"github.com/bumpdiff/bumpdiff/internal/relnotes"
	"github.com/bumpdiff/bumpdiff/internal/report"
	"github.com/bumpdiff/bumpdiff/internal/revrange"
)

// Differ runs one deployment-project comparison end to end.
type Differ struct {
	cfg      config.Config
	mirrors  *mirror.Manager
	resolver *revrange.Resolver
}

// New creates a Differ for the given configuration.
func New(cfg config.Config) *Differ {
	return &Differ{
		cfg:     cfg,
		mirrors: mirror.NewManager(cfg.MirrorRoot, cfg.NetworkTimeout()),
		resolver: &revrange.Resolver{
			IncludeMerges: cfg.IncludeMerges,
			Strict:        cfg.Strict,
		},
	}
}

// Run produces the diff report between two refs of the deployment project.
// Failures scoped to a single sub-project land in the report's failures list;
// only deployment-repo problems (unreachable mirror, unreadable manifest,
// unresolvable ref) abort the run.
func (d *Differ) Run(ctx context.Context, oldRef, newRef string) (*models.DiffReport, error) {
	deploy, oldPinsByCat, newPinsByCat, meta, err := d.readDeployment(ctx, oldRef, newRef)
	if err != nil {
		return nil, err
	}

	deployCommits, err := d.resolver.Commits(deploy, meta.OldRevision, meta.NewRevision)
	if err != nil {
		return nil, fmt.Errorf("enumerating %s commits: %w", d.cfg.RepoName, err)
	}

	var notes string
	if d.cfg.ReleaseNotes {
		notes, err = relnotes.Notes(ctx, deploy, meta.OldRevision, meta.NewRevision)
		if err != nil {
			// Notes are an extra; a broken reno install should not sink
			// the report.
			slog.Warn("release notes unavailable", "error", err)
		}
	}

	roleChanges := pindiff.Diff(oldPinsByCat.roles, newPinsByCat.roles)
	projectChanges := pindiff.Diff(oldPinsByCat.projects, newPinsByCat.projects)
	slog.Info("pins diffed",
		"role_changes", len(roleChanges),
		"project_changes", len(projectChanges))

	roles, failures, err := d.resolveAll(ctx, roleChanges)
	if err != nil {
		return nil, err
	}
	projects, projectFailures, err := d.resolveAll(ctx, projectChanges)
	if err != nil {
		return nil, err
	}
	failures = append(failures, projectFailures...)

	r := report.Assemble(meta, deployCommits, roles, projects, failures)
	r.ReleaseNotes = notes
	return r, nil
}

type pinsByCategory struct {
	roles    models.PinSet
	projects models.PinSet
}

// readDeployment ensures the deployment mirror, fixes the ref order and reads
// both manifest snapshots. Everything here is fatal: without the deployment
// manifests there is nothing to diff.
func (d *Differ) readDeployment(ctx context.Context, oldRef, newRef string) (*mirror.Mirror, pinsByCategory, pinsByCategory, models.ReportMeta, error) {
	var meta models.ReportMeta

	unlock := d.mirrors.Lock(d.cfg.RepoName)
	defer unlock()

	deploy, err := d.mirrors.Ensure(ctx, mirror.Identity{Name: d.cfg.RepoName, URL: d.cfg.RepoURL}, d.cfg.Update)
	if err != nil {
		return nil, pinsByCategory{}, pinsByCategory{}, meta, fmt.Errorf("preparing %s mirror: %w", d.cfg.RepoName, err)
	}

	swapped, err := d.resolver.Order(deploy, oldRef, newRef)
	if err != nil {
		return nil, pinsByCategory{}, pinsByCategory{}, meta, err
	}
	if swapped {
		slog.Info("refs supplied newest-first, swapping", "old", oldRef, "new", newRef)
		oldRef, newRef = newRef, oldRef
	}
	meta = models.ReportMeta{
		RepoName:    d.cfg.RepoName,
		RepoURL:     d.cfg.RepoURL,
		OldRevision: oldRef,
		NewRevision: newRef,
		Swapped:     swapped,
	}

	oldPins, err := d.readPins(deploy, oldRef)
	if err != nil {
		return nil, pinsByCategory{}, pinsByCategory{}, meta, err
	}
	newPins, err := d.readPins(deploy, newRef)
	if err != nil {
		return nil, pinsByCategory{}, pinsByCategory{}, meta, err
	}
	return deploy, oldPins, newPins, meta, nil
}

func (d *Differ) readPins(deploy *mirror.Mirror, revision string) (pinsByCategory, error) {
	pins := pinsByCategory{roles: models.PinSet{}, projects: models.PinSet{}}

	if !d.cfg.SkipRoles {
		roles, err := manifest.ReadRoles(deploy, revision, d.cfg.RoleRequirementsFile)
		if err != nil {
			return pins, fmt.Errorf("reading role pins at %s: %w", revision, err)
		}
		pins.roles = roles
	}
	if !d.cfg.SkipProjects {
		projects, err := manifest.ReadProjects(deploy, revision, d.cfg.PackagesDir)
		if err != nil {
			return pins, fmt.Errorf("reading project pins at %s: %w", revision, err)
		}
		pins.projects = projects
	}
	return pins, nil
}

// resolveAll fans the changed pins out over a bounded worker pool. Each pin's
// mirror is independent, so pipelines only synchronize on the per-mirror
// locks. Scoped failures are collected; anything else is fatal.
func (d *Differ) resolveAll(ctx context.Context, changes []models.PinChange) ([]models.ProjectDiffResult, []models.ProjectFailure, error) {
	results := make([]*models.ProjectDiffResult, len(changes))

	var mu sync.Mutex
	var failures []models.ProjectFailure

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.Workers)
	for i, change := range changes {
		i, change := i, change
		g.Go(func() error {
			res, err := d.resolveOne(ctx, change)
			if err != nil {
				var scoped *models.ScopedError
				if errors.As(err, &scoped) {
					slog.Warn("sub-project failed, continuing",
						"project", scoped.Name, "kind", scoped.Kind, "error", scoped.Err)
					mu.Lock()
					failures = append(failures, models.ProjectFailure{
						Name:   scoped.Name,
						Kind:   scoped.Kind,
						Reason: scoped.Err.Error(),
					})
					mu.Unlock()
					return nil
				}
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	// Keep the calculator's name-sorted order, minus the failed entries.
	resolved := make([]models.ProjectDiffResult, 0, len(results))
	for _, res := range results {
		if res != nil {
			resolved = append(resolved, *res)
		}
	}
	return resolved, failures, nil
}

func (d *Differ) resolveOne(ctx context.Context, change models.PinChange) (*models.ProjectDiffResult, error) {
	// Added and removed pins carry no commit range, so no mirror is needed.
	if change.Kind != models.ChangeUpdated {
		return d.resolver.Resolve(nil, change)
	}

	unlock := d.mirrors.Lock(change.Name)
	defer unlock()

	m, err := d.mirrors.Ensure(ctx, mirror.Identity{Name: change.Name, URL: change.RepoURL()}, d.cfg.Update)
	if err != nil {
		return nil, err
	}
	return d.resolver.Resolve(m, change)
}
