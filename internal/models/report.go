package models

// Direction describes how a pin's old revision relates to its new revision in
// the sub-project's history.
type Direction string

const (
	// DirectionForward means the old revision is an ancestor of the new one:
	// a normal version bump.
	DirectionForward Direction = "forward"
	// DirectionReversed means the new revision is an ancestor of the old one:
	// the pin was rolled back, and the commit list is what was lost.
	DirectionReversed Direction = "reversed"
	// DirectionDiverged means neither revision is reachable from the other
	// (rebase or force-push in the sub-project); the commit list is the
	// best-effort set reachable from new but not old.
	DirectionDiverged Direction = "diverged"
)

// CommitRecord is the metadata kept for one commit in a range.
type CommitRecord struct {
	ShortID string `json:"short_id"`
	Author  string `json:"author"`
	Subject string `json:"subject"`
}

// ProjectDiffResult is the resolved outcome for one changed pin: the revision
// pair and the ordered commits between them, newest first.
type ProjectDiffResult struct {
	Name        string         `json:"name"`
	RepoURL     string         `json:"repo_url"`
	Kind        ChangeKind     `json:"kind"`
	OldRevision string         `json:"old_revision"`
	NewRevision string         `json:"new_revision"`
	Direction   Direction      `json:"direction"`
	Commits     []CommitRecord `json:"commits"`
	CommitCount int            `json:"commit_count"`
}

// ProjectFailure records a sub-project whose pin changed but whose range could
// not be resolved. Failures sit beside successful results in the report; they
// never abort the run.
type ProjectFailure struct {
	Name   string      `json:"name"`
	Kind   FailureKind `json:"kind"`
	Reason string      `json:"reason"`
}

// ReportMeta identifies the deployment-project comparison the report covers.
type ReportMeta struct {
	RepoName    string `json:"repo_name"`
	RepoURL     string `json:"repo_url"`
	OldRevision string `json:"old_revision"`
	NewRevision string `json:"new_revision"`
	// Swapped is set when the caller supplied the refs in reverse
	// chronological order and they were flipped before processing.
	Swapped bool `json:"swapped"`
}

// DiffReport is the final artifact: the deployment project's own commits plus
// the per-category sub-project results, each name-sorted, plus every scoped
// failure encountered along the way.
type DiffReport struct {
	Meta              ReportMeta          `json:"meta"`
	DeploymentCommits []CommitRecord      `json:"deployment_commits"`
	Roles             []ProjectDiffResult `json:"roles"`
	Projects          []ProjectDiffResult `json:"projects"`
	Failures          []ProjectFailure    `json:"failures"`
	ReleaseNotes      string              `json:"release_notes,omitempty"`
}
