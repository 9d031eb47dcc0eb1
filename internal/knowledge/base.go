// Package knowledge collects what is known about one issue while it is
// being analyzed and renders it into the model prompt.
package knowledge

import (
	"strings"
	"sync"

	"issuewiz/internal/files"
	"issuewiz/internal/models"

	"github.com/sirupsen/logrus"
)

// OmittedContent stands in for an excerpt dropped to fit the prompt.
const OmittedContent = "(content omitted to fit the prompt)"

// FileExcerpt is the fetched, truncated content of a candidate file.
type FileExcerpt struct {
	File    models.FileInfo
	Content string
}

// FailedFile records a candidate file that could not be fetched.
type FailedFile struct {
	File   models.FileInfo
	Reason string
}

// Base is the per-request knowledge base. Files are recorded by their
// position among the candidates so the prompt keeps the caller's order
// even when fetches complete out of order.
type Base struct {
	mu sync.Mutex

	Owner  string
	Repo   string
	Issue  models.IssueDetails
	files  []models.FileInfo
	loaded map[int]string
	failed map[int]string
	notes  []string
}

// NewBase creates a knowledge base for the given request and candidate files.
func NewBase(req *models.AnalyzeIssueRequest, candidates []models.FileInfo) *Base {
	b := &Base{
		Owner:  req.Owner,
		Repo:   req.Repo,
		files:  candidates,
		loaded: make(map[int]string),
		failed: make(map[int]string),
	}
	if req.IssueDetails != nil {
		b.Issue = *req.IssueDetails
	}
	return b
}

// Files returns the candidate files in order.
func (b *Base) Files() []models.FileInfo {
	return b.files
}

// AddFileContent stores the excerpt for the candidate at index i.
func (b *Base) AddFileContent(i int, content string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.loaded[i] = content
	delete(b.failed, i)
	logrus.Debugf("Content added for '%s'", b.files[i].Path)
}

// AddFailedFile records that the candidate at index i could not be fetched.
func (b *Base) AddFailedFile(i int, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failed[i] = err.Error()
	logrus.Debugf("Failed file recorded for '%s': %v", b.files[i].Path, err)
}

// AddNote adds an analysis note, skipping consecutive duplicates.
func (b *Base) AddNote(note string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.notes) == 0 || b.notes[len(b.notes)-1] != note {
		b.notes = append(b.notes, note)
	}
}

// TrimExcerpts shortens every fetched excerpt to maxChars runes. A limit
// of zero or less replaces the content with OmittedContent.
func (b *Base) TrimExcerpts(maxChars int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, content := range b.loaded {
		if maxChars <= 0 {
			b.loaded[i] = OmittedContent
			continue
		}
		b.loaded[i] = files.Excerpt(strings.TrimSuffix(content, files.TruncationMarker), maxChars)
	}
}

// Excerpts returns the fetched files in candidate order.
func (b *Base) Excerpts() []FileExcerpt {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []FileExcerpt
	for i, f := range b.files {
		if content, ok := b.loaded[i]; ok {
			out = append(out, FileExcerpt{File: f, Content: content})
		}
	}
	return out
}

// Failed returns the files that could not be fetched, in candidate order.
func (b *Base) Failed() []FailedFile {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []FailedFile
	for i, f := range b.files {
		if reason, ok := b.failed[i]; ok {
			out = append(out, FailedFile{File: f, Reason: reason})
		}
	}
	return out
}

// Notes returns a copy of the analysis notes.
func (b *Base) Notes() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([]string(nil), b.notes...)
}
