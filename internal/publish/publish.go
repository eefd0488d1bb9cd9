// Package publish delivers a rendered report: stdout by default, optionally a
// file on disk or a public GitHub gist.
package publish

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/google/go-github/v62/github"
	"golang.org/x/oauth2"
)

// Options selects the report destinations.
type Options struct {
	// Quiet suppresses writing the report to Out.
	Quiet bool
	// File, when set, receives the report.
	File string
	// Gist posts the report as a public GitHub gist.
	Gist bool
	// GithubToken authenticates the gist upload; anonymous when empty.
	GithubToken string

	// Out defaults to os.Stdout.
	Out io.Writer
}

// Publish writes the report to every requested destination and returns a
// short status line for destinations other than stdout.
func Publish(ctx context.Context, report, oldRef, newRef string, opts Options) (string, error) {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	if !opts.Quiet {
		if _, err := io.WriteString(out, report); err != nil {
			return "", fmt.Errorf("writing report: %w", err)
		}
	}

	var status string

	if opts.Gist {
		url, err := postGist(ctx, report, oldRef, newRef, opts.GithubToken)
		if err != nil {
			return status, fmt.Errorf("posting gist: %w", err)
		}
		status += fmt.Sprintf("Report posted to GitHub gist: %s\n", url)
	}

	if opts.File != "" {
		if err := os.WriteFile(opts.File, []byte(report), 0644); err != nil {
			return status, fmt.Errorf("writing report file: %w", err)
		}
		status += fmt.Sprintf("Report written to file: %s\n", opts.File)
	}

	return status, nil
}

func postGist(ctx context.Context, report, oldRef, newRef, token string) (string, error) {
	var httpClient *http.Client
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		httpClient = oauth2.NewClient(ctx, ts)
	}
	client := github.NewClient(httpClient)

	filename := github.GistFilename(fmt.Sprintf("bumpdiff-%s-%s.rst", oldRef, newRef))
	gist := &github.Gist{
		Description: github.String(fmt.Sprintf("Pin changes between %s and %s", oldRef, newRef)),
		Public:      github.Bool(true),
		Files: map[github.GistFilename]github.GistFile{
			filename: {Content: github.String(report)},
		},
	}

	slog.Debug("posting gist", "filename", string(filename))
	created, _, err := client.Gists.Create(ctx, gist)
	if err != nil {
		return "", err
	}
	return created.GetHTMLURL(), nil
}
