// Package analysis turns a validated AnalyzeIssueRequest into an
// IssueAnalysis by fetching the candidate files and asking the model.
package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"issuewiz/config"
	"issuewiz/internal/knowledge"
	"issuewiz/internal/llm"
	"issuewiz/internal/models"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ErrMalformedAnalysis is returned when the model reply is not a valid
// IssueAnalysis document.
var ErrMalformedAnalysis = errors.New("model reply is not a valid analysis")

const systemMessage = `You are an expert code analyst and issue resolver. Respond in valid JSON format following this structure:
{
  "repository_analysis": {
    "purpose": "Main purpose of the repository",
    "tech_stack": ["List", "of", "technologies"],
    "issue_summary": "Core problem analysis"
  },
  "file_analysis": {
    "analyzed_files": [
      {
        "file_name": "path/to/file",
        "combined_probability": number,
        "reason": "Why this file needs modification"
      }
    ]
  },
  "recommendations": {
    "priority_order": ["Ordered", "list", "of", "files"],
    "specific_changes": "Detailed description of recommended changes",
    "additional_context": "Extra information needed"
  }
}`

const instructions = `
Provide analysis focusing on:
1. Repository purpose and tech stack
2. File relevance to issue
3. Specific recommendations for changes
`

// FileFetcher downloads a candidate file and returns a prompt-sized excerpt.
type FileFetcher interface {
	Fetch(ctx context.Context, rawURL string) (string, error)
}

// ProgressFunc receives progress events. Calls are serialized.
type ProgressFunc func(models.ProgressEvent)

// Engine orchestrates the issue analysis.
type Engine struct {
	client          llm.Client
	fetcher         FileFetcher
	cfg             config.AnalysisConfig
	llmTimeout      time.Duration
	maxPromptLength int
}

// NewEngine creates a new Engine. From llmCfg it uses the timeout (zero
// leaves the model call bounded only by the request context) and the
// prompt length the file excerpts are shortened to fit.
func NewEngine(client llm.Client, fetcher FileFetcher, cfg config.AnalysisConfig, llmCfg config.LLMConfig) *Engine {
	if cfg.FetchConcurrency <= 0 {
		cfg.FetchConcurrency = 1
	}
	return &Engine{
		client:          client,
		fetcher:         fetcher,
		cfg:             cfg,
		llmTimeout:      llmCfg.Timeout,
		maxPromptLength: llmCfg.MaxPromptLength,
	}
}

// Analyze runs the full analysis. progress may be nil.
func (e *Engine) Analyze(ctx context.Context, req *models.AnalyzeIssueRequest, progress ProgressFunc) (*models.IssueAnalysis, error) {
	emit := serialize(progress)
	log := logrus.WithFields(logrus.Fields{"owner": req.Owner, "repo": req.Repo})

	candidates := req.FilteredFiles
	var dropped []models.FileInfo
	if e.cfg.MaxFiles > 0 && len(candidates) > e.cfg.MaxFiles {
		candidates, dropped = candidates[:e.cfg.MaxFiles], candidates[e.cfg.MaxFiles:]
	}
	kb := knowledge.NewBase(req, candidates)

	if req.RepoMismatch() {
		log.Warnf("Issue details name %s/%s, analyzing %s/%s",
			req.IssueDetails.Owner, req.IssueDetails.Repo, req.Owner, req.Repo)
		kb.AddNote(fmt.Sprintf("The issue was filed against %s/%s; the files come from %s/%s.",
			req.IssueDetails.Owner, req.IssueDetails.Repo, req.Owner, req.Repo))
	}
	if len(dropped) > 0 {
		paths := make([]string, 0, len(dropped))
		for _, f := range dropped {
			paths = append(paths, f.Path)
		}
		kb.AddNote(fmt.Sprintf("%d more candidate files were not read: %s", len(dropped), strings.Join(paths, ", ")))
	}

	log.Infof("1. Fetching %d candidate files...", len(candidates))
	emit(models.ProgressEvent{Type: "progress", Step: "fetch", Message: "Fetching candidate files...", Total: len(candidates)})
	if err := e.fetchFiles(ctx, kb, emit); err != nil {
		return nil, err
	}

	log.Info("2. Requesting analysis from the model...")
	emit(models.ProgressEvent{Type: "progress", Step: "analyze", Message: "Analyzing the issue..."})
	prompt := e.buildPrompt(kb)

	reply, err := e.request(ctx, prompt)
	if err != nil {
		return nil, err
	}

	log.Info("3. Parsing analysis...")
	analysis, err := ParseAnalysis(reply)
	if err != nil {
		log.WithError(err).Debugf("Unparseable reply: %s", reply)
		return nil, err
	}
	return analysis, nil
}

// fetchFiles downloads the candidates into kb. Individual failures are
// recorded and never fail the analysis; only cancellation does.
func (e *Engine) fetchFiles(ctx context.Context, kb *knowledge.Base, emit ProgressFunc) error {
	files := kb.Files()

	var g errgroup.Group
	g.SetLimit(e.cfg.FetchConcurrency)

	var mu sync.Mutex
	done := 0
	for i, f := range files {
		g.Go(func() error {
			content, err := e.fetcher.Fetch(ctx, f.DownloadURL)
			if err != nil {
				logrus.Warnf("Could not fetch %s: %v", f.Path, err)
				kb.AddFailedFile(i, err)
			} else {
				kb.AddFileContent(i, content)
			}

			mu.Lock()
			done++
			n := done
			mu.Unlock()
			emit(models.ProgressEvent{Type: "step", Step: "fetch", Message: "Fetched " + f.Path, Iteration: n, Total: len(files)})
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("fetching files: %w", err)
	}
	return nil
}

// buildPrompt renders the prompt, halving the file excerpts until it fits
// maxPromptLength so the instructions at its end survive.
func (e *Engine) buildPrompt(kb *knowledge.Base) string {
	render := func() string {
		return "Analyze this GitHub issue and relevant files:\n\n" +
			kb.GetContextSummary(e.cfg.MaxDescriptionLength) + instructions
	}

	prompt := render()
	if e.maxPromptLength <= 0 || utf8.RuneCountInString(prompt) <= e.maxPromptLength {
		return prompt
	}

	kb.AddNote("File excerpts were shortened to fit the prompt.")
	limit := e.cfg.MaxCharsPerFile
	for limit > 0 {
		limit /= 2
		kb.TrimExcerpts(limit)
		prompt = render()
		if utf8.RuneCountInString(prompt) <= e.maxPromptLength {
			break
		}
	}
	logrus.Debugf("File excerpts shortened to %d characters to fit the prompt", limit)
	return prompt
}

func (e *Engine) request(ctx context.Context, prompt string) (string, error) {
	if e.llmTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.llmTimeout)
		defer cancel()
	}

	reply, err := e.client.Request(ctx, systemMessage, prompt)
	if err != nil {
		return "", fmt.Errorf("requesting analysis: %w", err)
	}
	return reply, nil
}

// ParseAnalysis strips code fences from a model reply and decodes it.
func ParseAnalysis(reply string) (*models.IssueAnalysis, error) {
	sanitized := llm.SanitizeReply(reply)
	if sanitized == "" {
		return nil, llm.ErrEmptyCompletion
	}

	var analysis models.IssueAnalysis
	if err := json.Unmarshal([]byte(sanitized), &analysis); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedAnalysis, err)
	}
	return &analysis, nil
}

func serialize(progress ProgressFunc) ProgressFunc {
	if progress == nil {
		return func(models.ProgressEvent) {}
	}
	var mu sync.Mutex
	return func(ev models.ProgressEvent) {
		mu.Lock()
		defer mu.Unlock()
		progress(ev)
	}
}
