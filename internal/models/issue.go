package models

// FileInfo is a candidate file the client thinks is relevant to the issue.
type FileInfo struct {
	Name        string `json:"name" binding:"required"`
	Path        string `json:"path" binding:"required"`
	DownloadURL string `json:"download_url" binding:"required"`
}

// IssueDetails describes the GitHub issue being analyzed.
type IssueDetails struct {
	Owner       string `json:"owner" binding:"required"`
	Repo        string `json:"repo" binding:"required"`
	Title       string `json:"title" binding:"required"`
	Description string `json:"description" binding:"required"`
	Labels      Labels `json:"labels,omitzero"`
}

// AnalyzeIssueRequest is the body of POST /models/analyze-issue.
//
// Owner and Repo are independent of IssueDetails.Owner and
// IssueDetails.Repo; no consistency between them is enforced.
type AnalyzeIssueRequest struct {
	Owner         string        `json:"owner" binding:"required"`
	Repo          string        `json:"repo" binding:"required"`
	FilteredFiles []FileInfo    `json:"filteredFiles" binding:"required,dive"`
	IssueDetails  *IssueDetails `json:"issueDetails" binding:"required"`
}

// RepoMismatch reports whether the top-level repository differs from the
// one named in the issue details.
func (r *AnalyzeIssueRequest) RepoMismatch() bool {
	if r.IssueDetails == nil {
		return false
	}
	return r.Owner != r.IssueDetails.Owner || r.Repo != r.IssueDetails.Repo
}
