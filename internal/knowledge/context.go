package knowledge

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// DescriptionTruncationMarker is appended to descriptions that were cut short.
const DescriptionTruncationMarker = "... (truncated)"

// GetContextSummary renders the knowledge base as the user prompt.
func (b *Base) GetContextSummary(maxDescriptionLength int) string {
	var summary strings.Builder

	fmt.Fprintf(&summary, "Repository: %s/%s\n", b.Owner, b.Repo)
	fmt.Fprintf(&summary, "Issue title: %s\n", b.Issue.Title)
	fmt.Fprintf(&summary, "Issue description:\n%s\n", truncateDescription(b.Issue.Description, maxDescriptionLength))

	summary.WriteString("Labels: ")
	if labels := b.Issue.Labels.Values(); len(labels) > 0 {
		summary.WriteString(strings.Join(labels, ", "))
	} else {
		summary.WriteString("(none)")
	}
	summary.WriteString("\n")

	summary.WriteString("\nCandidate files (excerpts):\n")
	excerpts := b.Excerpts()
	if len(excerpts) == 0 {
		summary.WriteString("(none)\n")
	}
	for _, e := range excerpts {
		fmt.Fprintf(&summary, "\n--- %s (%s) ---\n%s\n", e.File.Name, e.File.Path, e.Content)
	}

	if failed := b.Failed(); len(failed) > 0 {
		summary.WriteString("\nUnavailable files (judge them by path only):\n")
		for _, f := range failed {
			fmt.Fprintf(&summary, "- %s: %s\n", f.File.Path, f.Reason)
		}
	}

	if notes := b.Notes(); len(notes) > 0 {
		summary.WriteString("\nNotes:\n")
		for _, n := range notes {
			fmt.Fprintf(&summary, "- %s\n", n)
		}
	}

	return summary.String()
}

func truncateDescription(description string, maxLength int) string {
	if maxLength <= 0 || utf8.RuneCountInString(description) <= maxLength {
		return description
	}
	return string([]rune(description)[:maxLength]) + DescriptionTruncationMarker
}
