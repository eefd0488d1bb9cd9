package report

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/bumpdiff/bumpdiff/internal/models"
)

const rstTemplate = `{{title .Meta.RepoName}}

{{len .DeploymentCommits}} commits between {{.Meta.OldRevision}} and {{.Meta.NewRevision}}{{if .Meta.Swapped}} (refs were supplied in reverse order and swapped){{end}}:

{{range .DeploymentCommits}}* ` + "`{{.ShortID}} <{{commitBase $.Meta.RepoURL}}/commit/{{.ShortID}}>`_" + ` {{.Subject}} ({{.Author}})
{{end}}{{if .ReleaseNotes}}
Release Notes
-------------
{{.ReleaseNotes}}
{{end}}{{if .Roles}}
Roles
-----
{{range .Roles}}{{project .}}{{end}}{{end}}{{if .Projects}}
Projects
--------
{{range .Projects}}{{project .}}{{end}}{{end}}{{if .Failures}}
Unresolved
----------

{{range .Failures}}* {{.Name}}: {{.Kind}} ({{.Reason}})
{{end}}{{end}}`

const projectTemplate = `
{{section .Name}}

{{if added .}}New addition at {{.NewRevision}}, no commit range computed.
{{else if removed .}}Removed (was {{.OldRevision}}), no commit range computed.
{{else}}{{.CommitCount}} commits between {{.OldRevision}} and {{.NewRevision}}{{if reversed .}} (rolled back, listing what was lost){{end}}{{if diverged .}} (history diverged, best-effort range){{end}}:

{{range .Commits}}* ` + "`{{.ShortID}} <{{commitBase $.RepoURL}}/commit/{{.ShortID}}>`_" + ` {{.Subject}} ({{.Author}})
{{end}}{{end}}`

// RenderRST formats a DiffReport as reStructuredText.
func RenderRST(r *models.DiffReport) (string, error) {
	funcs := template.FuncMap{
		"commitBase": CommitBaseURL,
		"title":      func(s string) string { return underline(s, "=") },
		"section":    func(s string) string { return underline(s, "~") },
		"added":      func(p models.ProjectDiffResult) bool { return p.Kind == models.ChangeAdded },
		"removed":    func(p models.ProjectDiffResult) bool { return p.Kind == models.ChangeRemoved },
		"reversed":   func(p models.ProjectDiffResult) bool { return p.Direction == models.DirectionReversed },
		"diverged":   func(p models.ProjectDiffResult) bool { return p.Direction == models.DirectionDiverged },
	}

	projectTmpl, err := template.New("project").Funcs(funcs).Parse(projectTemplate)
	if err != nil {
		return "", fmt.Errorf("parsing project template: %w", err)
	}
	funcs["project"] = func(p models.ProjectDiffResult) (string, error) {
		var sb strings.Builder
		if err := projectTmpl.Execute(&sb, p); err != nil {
			return "", err
		}
		return sb.String(), nil
	}

	tmpl, err := template.New("report").Funcs(funcs).Parse(rstTemplate)
	if err != nil {
		return "", fmt.Errorf("parsing report template: %w", err)
	}

	var sb strings.Builder
	if err := tmpl.Execute(&sb, r); err != nil {
		return "", fmt.Errorf("rendering report: %w", err)
	}
	return sb.String(), nil
}

// CommitBaseURL derives the browsable commit URL base for a repository URL.
// GitHub URLs lose their ".git" suffix; git.openstack.org repositories are
// browsable through their GitHub mirror. Anything else passes through as-is.
func CommitBaseURL(repoURL string) string {
	if strings.Contains(repoURL, "github.com") {
		return strings.TrimSuffix(repoURL, ".git")
	}
	if strings.Contains(repoURL, "git.openstack.org") {
		parts := strings.Split(strings.TrimSuffix(repoURL, "/"), "/")
		if len(parts) >= 2 {
			return "https://github.com/" + strings.Join(parts[len(parts)-2:], "/")
		}
	}
	return repoURL
}

func underline(s, ch string) string {
	return s + "\n" + strings.Repeat(ch, len(s))
}
