// Package report assembles resolved diff results into the final report and
// renders it as RST.
package report

import (
	"slices"
	"strings"

	"github.com/bumpdiff/bumpdiff/internal/models"
)

// Assemble merges the per-category results and the scoped failures into one
// DiffReport. Pure aggregation: results keep the name-sorted order produced
// by the diff calculator, failures are sorted here so identical inputs always
// produce an identical report.
func Assemble(meta models.ReportMeta, deploymentCommits []models.CommitRecord, roles, projects []models.ProjectDiffResult, failures []models.ProjectFailure) *models.DiffReport {
	sorted := slices.Clone(failures)
	slices.SortFunc(sorted, func(a, b models.ProjectFailure) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(string(a.Kind), string(b.Kind))
	})

	return &models.DiffReport{
		Meta:              meta,
		DeploymentCommits: deploymentCommits,
		Roles:             roles,
		Projects:          projects,
		Failures:          sorted,
	}
}
