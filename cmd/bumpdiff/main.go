package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/bumpdiff/bumpdiff/internal/config"
	"github.com/bumpdiff/bumpdiff/internal/differ"
	"github.com/bumpdiff/bumpdiff/internal/publish"
	"github.com/bumpdiff/bumpdiff/internal/report"
)

func main() {
	defaults := config.Default()

	configPath := flag.String("config", "bumpdiff.toml", "optional TOML config file")
	directory := flag.String("directory", "", "repository mirror storage directory")
	repoURL := flag.String("repo-url", "", "deployment project git URL")
	roleFile := flag.String("role-requirements", "", "role requirements file inside the deployment repo")
	packagesDir := flag.String("packages-dir", "", "project pin manifest directory inside the deployment repo")
	update := flag.Bool("update", false, "fetch the latest changes into existing mirrors")
	skipProjects := flag.Bool("skip-projects", false, "skip checking for project pin changes")
	skipRoles := flag.Bool("skip-roles", false, "skip checking for role pin changes")
	includeMerges := flag.Bool("include-merges", false, "include merge commits in commit ranges")
	strict := flag.Bool("strict", false, "treat diverged pin history as a per-project failure")
	releaseNotes := flag.Bool("release-notes", false, "include reno release notes between the two refs")
	workers := flag.Int("workers", defaults.Workers, "number of sub-projects processed in parallel")
	timeout := flag.Float64("timeout", defaults.NetworkTimeoutSec, "clone/fetch timeout in seconds (0 disables)")
	file := flag.String("file", "", "write the report to this file")
	gist := flag.Bool("gist", false, "post the report to a public GitHub gist")
	quiet := flag.Bool("quiet", false, "do not print the report to stdout")
	verbose := flag.Bool("verbose", false, "enable info output")
	debug := flag.Bool("debug", false, "enable debug output")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() != 2 {
		usage()
		os.Exit(2)
	}
	oldRef, newRef := flag.Arg(0), flag.Arg(1)

	setupLogging(*verbose, *debug)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}
	applyFlags(&cfg, *directory, *repoURL, *roleFile, *packagesDir)
	cfg.Update = cfg.Update || *update
	cfg.SkipProjects = cfg.SkipProjects || *skipProjects
	cfg.SkipRoles = cfg.SkipRoles || *skipRoles
	cfg.IncludeMerges = cfg.IncludeMerges || *includeMerges
	cfg.Strict = cfg.Strict || *strict
	cfg.ReleaseNotes = cfg.ReleaseNotes || *releaseNotes
	if *workers != defaults.Workers {
		cfg.Workers = *workers
	}
	if *timeout != defaults.NetworkTimeoutSec {
		cfg.NetworkTimeoutSec = *timeout
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// Setup context with manual signal handling
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	defer func() {
		signal.Stop(sigChan)
		cancel()
	}()

	go func() {
		sig := <-sigChan
		slog.Info("interrupt received, shutting down gracefully...", "signal", sig)
		cancel()
	}()

	result, err := differ.New(cfg).Run(ctx, oldRef, newRef)
	if err != nil {
		slog.Error("diff failed", "error", err)
		os.Exit(1)
	}

	rendered, err := report.RenderRST(result)
	if err != nil {
		slog.Error("rendering report", "error", err)
		os.Exit(1)
	}

	status, err := publish.Publish(ctx, rendered, result.Meta.OldRevision, result.Meta.NewRevision, publish.Options{
		Quiet:       *quiet,
		File:        *file,
		Gist:        *gist,
		GithubToken: os.Getenv("GITHUB_TOKEN"),
	})
	if err != nil {
		slog.Error("publishing report", "error", err)
		os.Exit(1)
	}
	if status != "" {
		fmt.Print(status)
	}
}

func applyFlags(cfg *config.Config, directory, repoURL, roleFile, packagesDir string) {
	if directory != "" {
		cfg.MirrorRoot = directory
	}
	if repoURL != "" {
		cfg.RepoURL = repoURL
	}
	if roleFile != "" {
		cfg.RoleRequirementsFile = roleFile
	}
	if packagesDir != "" {
		cfg.PackagesDir = packagesDir
	}
}

func setupLogging(verbose, debug bool) {
	level := slog.LevelError
	if verbose {
		level = slog.LevelInfo
	}
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: bumpdiff [flags] <old-ref> <new-ref>")
	fmt.Fprintln(os.Stderr, "\nFinds pin changes in a deployment project between two of its revisions")
	fmt.Fprintln(os.Stderr, "and reports the commits each changed sub-project picked up.")
	fmt.Fprintln(os.Stderr, "\nFlags:")
	flag.PrintDefaults()
}
