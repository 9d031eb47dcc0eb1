package models

// IssueAnalysis is the structured reply the model is asked to produce.
type IssueAnalysis struct {
	RepositoryAnalysis RepositoryAnalysis `json:"repository_analysis"`
	FileAnalysis       FileAnalysis       `json:"file_analysis"`
	Recommendations    Recommendations    `json:"recommendations"`
}

// RepositoryAnalysis summarizes the repository and the issue.
type RepositoryAnalysis struct {
	Purpose      string   `json:"purpose"`
	TechStack    []string `json:"tech_stack"`
	IssueSummary string   `json:"issue_summary"`
}

// FileAnalysis lists the files judged relevant to the issue.
type FileAnalysis struct {
	AnalyzedFiles []AnalyzedFile `json:"analyzed_files"`
}

// AnalyzedFile scores one file's relevance.
type AnalyzedFile struct {
	FileName            string  `json:"file_name"`
	CombinedProbability float64 `json:"combined_probability"`
	Reason              string  `json:"reason"`
}

// Recommendations holds the suggested next steps.
type Recommendations struct {
	PriorityOrder     []string `json:"priority_order"`
	SpecificChanges   string   `json:"specific_changes"`
	AdditionalContext string   `json:"additional_context"`
}

// AnalyzeIssueResponse wraps a successful analysis.
type AnalyzeIssueResponse struct {
	Reply *IssueAnalysis `json:"reply"`
}

// ProgressEvent defines the structure for streaming progress events
type ProgressEvent struct {
	Type      string `json:"type"`      // "progress", "step", "result", "error"
	Step      string `json:"step"`      // Current step description
	Message   string `json:"message"`   // Progress message
	Iteration int    `json:"iteration"` // Current item number
	Total     int    `json:"total"`     // Total items
	Data      string `json:"data"`      // Additional data (final analysis, etc.)
}
