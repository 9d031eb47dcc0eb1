package analysis

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"issuewiz/config"
	"issuewiz/internal/llm"
	"issuewiz/internal/models"
)

const validReply = "```json\n" + `{
  "repository_analysis": {"purpose": "Greeter", "tech_stack": ["Python"], "issue_summary": "Crash"},
  "file_analysis": {"analyzed_files": [{"file_name": "src/a.py", "combined_probability": 0.9, "reason": "Entry point"}]},
  "recommendations": {"priority_order": ["src/a.py"], "specific_changes": "Guard None", "additional_context": ""}
}` + "\n```"

type fakeLLM struct {
	mu     sync.Mutex
	reply  string
	err    error
	system string
	prompt string
	calls  int
}

func (f *fakeLLM) Request(ctx context.Context, systemMessage, userPrompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.system = systemMessage
	f.prompt = userPrompt
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

type fakeFetcher struct {
	mu      sync.Mutex
	content map[string]string
	fetched []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, rawURL)
	if c, ok := f.content[rawURL]; ok {
		return c, nil
	}
	return "", errors.New("unexpected status 404 Not Found")
}

func testConfig() config.AnalysisConfig {
	return config.AnalysisConfig{
		MaxFiles:             3,
		MaxCharsPerFile:      1000,
		MaxDescriptionLength: 500,
		FetchConcurrency:     2,
	}
}

func testRequest(n int) *models.AnalyzeIssueRequest {
	req := &models.AnalyzeIssueRequest{
		Owner: "octo",
		Repo:  "hello",
		IssueDetails: &models.IssueDetails{
			Owner:       "octo",
			Repo:        "hello",
			Title:       "Crash on start",
			Description: "It crashes.",
		},
		FilteredFiles: []models.FileInfo{},
	}
	for i := 0; i < n; i++ {
		name := string(rune('a'+i)) + ".py"
		req.FilteredFiles = append(req.FilteredFiles, models.FileInfo{
			Name:        name,
			Path:        "src/" + name,
			DownloadURL: "https://raw.example/" + name,
		})
	}
	return req
}

func TestAnalyze(t *testing.T) {
	client := &fakeLLM{reply: validReply}
	fetcher := &fakeFetcher{content: map[string]string{
		"https://raw.example/a.py": "print('a')",
		"https://raw.example/c.py": "print('c')",
	}}
	engine := NewEngine(client, fetcher, testConfig(), config.LLMConfig{Timeout: time.Second})

	var events []models.ProgressEvent
	got, err := engine.Analyze(context.Background(), testRequest(5), func(ev models.ProgressEvent) {
		events = append(events, ev)
	})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	if got.RepositoryAnalysis.Purpose != "Greeter" {
		t.Errorf("Purpose = %q", got.RepositoryAnalysis.Purpose)
	}
	if len(got.FileAnalysis.AnalyzedFiles) != 1 || got.FileAnalysis.AnalyzedFiles[0].CombinedProbability != 0.9 {
		t.Errorf("AnalyzedFiles = %+v", got.FileAnalysis.AnalyzedFiles)
	}

	if len(fetcher.fetched) != 3 {
		t.Errorf("fetched %d files, want the first 3", len(fetcher.fetched))
	}
	for _, u := range fetcher.fetched {
		if strings.HasSuffix(u, "d.py") || strings.HasSuffix(u, "e.py") {
			t.Errorf("fetched %s beyond max_files", u)
		}
	}

	if !strings.Contains(client.system, `"repository_analysis"`) {
		t.Error("system message does not prescribe the analysis shape")
	}
	for _, want := range []string{"Repository: octo/hello", "print('a')", "print('c')", "- src/b.py:"} {
		if !strings.Contains(client.prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}

	var steps int
	for _, ev := range events {
		if ev.Type == "step" {
			steps++
			if ev.Total != 3 {
				t.Errorf("step event Total = %d, want 3", ev.Total)
			}
		}
	}
	if steps != 3 {
		t.Errorf("got %d step events, want 3", steps)
	}
}

func TestAnalyze_NoFiles(t *testing.T) {
	client := &fakeLLM{reply: validReply}
	engine := NewEngine(client, &fakeFetcher{}, testConfig(), config.LLMConfig{})

	if _, err := engine.Analyze(context.Background(), testRequest(0), nil); err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if client.calls != 1 {
		t.Errorf("LLM calls = %d, want 1", client.calls)
	}
}

func TestAnalyze_Errors(t *testing.T) {
	upstream := errors.New("connection refused")

	tests := []struct {
		name    string
		client  *fakeLLM
		wantErr error
	}{
		{name: "llm failure", client: &fakeLLM{err: upstream}, wantErr: upstream},
		{name: "empty reply", client: &fakeLLM{reply: "```\n```"}, wantErr: llm.ErrEmptyCompletion},
		{name: "not json", client: &fakeLLM{reply: "I think the bug is in a.py"}, wantErr: ErrMalformedAnalysis},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := NewEngine(tt.client, &fakeFetcher{}, testConfig(), config.LLMConfig{Timeout: time.Second})
			_, err := engine.Analyze(context.Background(), testRequest(1), nil)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Analyze() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestAnalyze_Cancelled(t *testing.T) {
	client := &fakeLLM{reply: validReply}
	engine := NewEngine(client, &fakeFetcher{}, testConfig(), config.LLMConfig{Timeout: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := engine.Analyze(ctx, testRequest(2), nil); !errors.Is(err, context.Canceled) {
		t.Errorf("Analyze() error = %v, want context.Canceled", err)
	}
	if client.calls != 0 {
		t.Error("LLM called after cancellation")
	}
}

func TestParseAnalysis(t *testing.T) {
	got, err := ParseAnalysis(validReply)
	if err != nil {
		t.Fatalf("ParseAnalysis() error = %v", err)
	}
	if got.Recommendations.SpecificChanges != "Guard None" {
		t.Errorf("SpecificChanges = %q", got.Recommendations.SpecificChanges)
	}
}

func TestAnalyze_NotesReachPrompt(t *testing.T) {
	client := &fakeLLM{reply: validReply}
	req := testRequest(5)
	req.IssueDetails.Repo = "fork"

	engine := NewEngine(client, &fakeFetcher{}, testConfig(), config.LLMConfig{})
	if _, err := engine.Analyze(context.Background(), req, nil); err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	for _, want := range []string{
		"Notes:",
		"The issue was filed against octo/fork; the files come from octo/hello.",
		"2 more candidate files were not read: src/d.py, src/e.py",
	} {
		if !strings.Contains(client.prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, client.prompt)
		}
	}
}

func TestAnalyze_NoNotesWhenNothingToSay(t *testing.T) {
	client := &fakeLLM{reply: validReply}
	engine := NewEngine(client, &fakeFetcher{}, testConfig(), config.LLMConfig{})
	if _, err := engine.Analyze(context.Background(), testRequest(2), nil); err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if strings.Contains(client.prompt, "Notes:") {
		t.Errorf("unexpected notes in prompt:\n%s", client.prompt)
	}
}

func TestAnalyze_ShortensExcerptsToFitPrompt(t *testing.T) {
	client := &fakeLLM{reply: validReply}
	fetcher := &fakeFetcher{content: map[string]string{
		"https://raw.example/a.py": strings.Repeat("é", 1000),
		"https://raw.example/b.py": strings.Repeat("ü", 1000),
	}}
	engine := NewEngine(client, fetcher, testConfig(), config.LLMConfig{MaxPromptLength: 1500})

	if _, err := engine.Analyze(context.Background(), testRequest(2), nil); err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	if n := utf8.RuneCountInString(client.prompt); n > 1500 {
		t.Errorf("prompt has %d runes, want at most 1500", n)
	}
	if !strings.HasSuffix(client.prompt, instructions) {
		t.Error("instructions were cut from the prompt")
	}
	if !utf8.ValidString(client.prompt) {
		t.Error("prompt is not valid UTF-8")
	}
	for _, want := range []string{"--- a.py (src/a.py) ---", "--- b.py (src/b.py) ---", "File excerpts were shortened"} {
		if !strings.Contains(client.prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}
