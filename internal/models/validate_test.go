package models

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
)

const validPayload = `{"owner":"foo","repo":"bar","filteredFiles":[{"name":"a.py","path":"src/a.py","download_url":"http://x/a.py"}],"issueDetails":{"owner":"foo","repo":"bar","title":"Bug","description":"desc","labels":["bug"]}}`

func mustSchemaError(t *testing.T, err error) *SchemaValidationError {
	t.Helper()
	var verr *SchemaValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *SchemaValidationError, got %T (%v)", err, err)
	}
	return verr
}

func TestDecodeAnalyzeIssueRequest_Valid(t *testing.T) {
	req, err := DecodeAnalyzeIssueRequest([]byte(validPayload))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if req.Owner != "foo" || req.Repo != "bar" {
		t.Errorf("owner/repo = %s/%s, want foo/bar", req.Owner, req.Repo)
	}
	if len(req.FilteredFiles) != 1 {
		t.Fatalf("len(FilteredFiles) = %d, want 1", len(req.FilteredFiles))
	}
	want := FileInfo{Name: "a.py", Path: "src/a.py", DownloadURL: "http://x/a.py"}
	if req.FilteredFiles[0] != want {
		t.Errorf("FilteredFiles[0] = %+v, want %+v", req.FilteredFiles[0], want)
	}
	if req.IssueDetails.Title != "Bug" || req.IssueDetails.Description != "desc" {
		t.Errorf("unexpected issue details: %+v", req.IssueDetails)
	}
	if !reflect.DeepEqual(req.IssueDetails.Labels.Values(), []string{"bug"}) {
		t.Errorf("labels = %v, want [bug]", req.IssueDetails.Labels.Values())
	}
}

func TestDecodeAnalyzeIssueRequest_RoundTrip(t *testing.T) {
	req, err := DecodeAnalyzeIssueRequest([]byte(validPayload))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var got, want map[string]any
	if err := json.Unmarshal(out, &got); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal([]byte(validPayload), &want); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("round trip mismatch:\n got  %s\n want %s", out, validPayload)
	}
}

func TestDecodeAnalyzeIssueRequest_MissingTopLevel(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		field   string
	}{
		{
			name:    "owner",
			payload: `{"repo":"bar","filteredFiles":[],"issueDetails":{"owner":"foo","repo":"bar","title":"t","description":"d"}}`,
			field:   "owner",
		},
		{
			name:    "repo",
			payload: `{"owner":"foo","filteredFiles":[],"issueDetails":{"owner":"foo","repo":"bar","title":"t","description":"d"}}`,
			field:   "repo",
		},
		{
			name:    "filteredFiles",
			payload: `{"owner":"foo","repo":"bar","issueDetails":{"owner":"foo","repo":"bar","title":"t","description":"d"}}`,
			field:   "filteredFiles",
		},
		{
			name:    "filteredFiles null",
			payload: `{"owner":"foo","repo":"bar","filteredFiles":null,"issueDetails":{"owner":"foo","repo":"bar","title":"t","description":"d"}}`,
			field:   "filteredFiles",
		},
		{
			name:    "issueDetails",
			payload: `{"owner":"foo","repo":"bar","filteredFiles":[]}`,
			field:   "issueDetails",
		},
		{
			name:    "issueDetails title",
			payload: `{"owner":"foo","repo":"bar","filteredFiles":[],"issueDetails":{"owner":"foo","repo":"bar","description":"d"}}`,
			field:   "issueDetails.title",
		},
		{
			name:    "issueDetails description",
			payload: `{"owner":"foo","repo":"bar","filteredFiles":[],"issueDetails":{"owner":"foo","repo":"bar","title":"t"}}`,
			field:   "issueDetails.description",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := DecodeAnalyzeIssueRequest([]byte(tt.payload))
			if req != nil {
				t.Error("expected no request on failure")
			}
			verr := mustSchemaError(t, err)
			if !reflect.DeepEqual(verr.Fields(), []string{tt.field}) {
				t.Errorf("fields = %v, want [%s]", verr.Fields(), tt.field)
			}
		})
	}
}

func TestDecodeAnalyzeIssueRequest_FileInfoFields(t *testing.T) {
	tests := []struct {
		name  string
		file  string
		field string
	}{
		{name: "name", file: `{"path":"src/a.py","download_url":"http://x/a.py"}`, field: "filteredFiles[1].name"},
		{name: "path", file: `{"name":"a.py","download_url":"http://x/a.py"}`, field: "filteredFiles[1].path"},
		{name: "download_url", file: `{"name":"a.py","path":"src/a.py"}`, field: "filteredFiles[1].download_url"},
		{name: "empty name", file: `{"name":"","path":"src/a.py","download_url":"http://x/a.py"}`, field: "filteredFiles[1].name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := `{"owner":"foo","repo":"bar","filteredFiles":[` +
				`{"name":"ok.py","path":"ok.py","download_url":"http://x/ok.py"},` + tt.file +
				`],"issueDetails":{"owner":"foo","repo":"bar","title":"t","description":"d"}}`

			_, err := DecodeAnalyzeIssueRequest([]byte(payload))
			verr := mustSchemaError(t, err)
			if !reflect.DeepEqual(verr.Fields(), []string{tt.field}) {
				t.Errorf("fields = %v, want [%s]", verr.Fields(), tt.field)
			}
		})
	}
}

func TestDecodeAnalyzeIssueRequest_ReportsEveryMissingField(t *testing.T) {
	_, err := DecodeAnalyzeIssueRequest([]byte(`{}`))
	verr := mustSchemaError(t, err)

	want := []string{"owner", "repo", "filteredFiles", "issueDetails"}
	if !reflect.DeepEqual(verr.Fields(), want) {
		t.Errorf("fields = %v, want %v", verr.Fields(), want)
	}
	if !strings.Contains(verr.Error(), "owner: field required") {
		t.Errorf("Error() = %q", verr.Error())
	}
}

func TestDecodeAnalyzeIssueRequest_WrongShape(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		field   string
	}{
		{name: "malformed json", payload: `{"owner":`, field: "body"},
		{name: "empty body", payload: ``, field: "body"},
		{name: "array body", payload: `[]`, field: "body"},
		{name: "numeric owner", payload: `{"owner":1}`, field: "owner"},
		{name: "files not array", payload: `{"owner":"foo","filteredFiles":{}}`, field: "filteredFiles"},
		{
			name: "numeric name in second file",
			payload: `{"owner":"foo","repo":"bar","filteredFiles":[` +
				`{"name":"ok.py","path":"ok.py","download_url":"http://x/ok.py"},` +
				`{"name":5,"path":"b.py","download_url":"http://x/b.py"}]}`,
			field: "filteredFiles[1].name",
		},
		{
			name:    "file not an object",
			payload: `{"owner":"foo","filteredFiles":[{"name":"ok.py","path":"ok.py","download_url":"http://x/ok.py"},5]}`,
			field:   "filteredFiles[1]",
		},
		{
			name:    "null label",
			payload: `{"owner":"foo","issueDetails":{"owner":"foo","repo":"bar","title":"t","description":"d","labels":["bug",null]}}`,
			field:   "issueDetails.labels[1]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeAnalyzeIssueRequest([]byte(tt.payload))
			verr := mustSchemaError(t, err)
			if len(verr.Errors) != 1 || verr.Errors[0].Field != tt.field {
				t.Errorf("errors = %+v, want single error on %q", verr.Errors, tt.field)
			}
		})
	}
}

func TestDecodeAnalyzeIssueRequest_LabelsWrongType(t *testing.T) {
	payload := `{"owner":"foo","repo":"bar","filteredFiles":[],"issueDetails":{"owner":"foo","repo":"bar","title":"t","description":"d","labels":"bug"}}`
	_, err := DecodeAnalyzeIssueRequest([]byte(payload))
	mustSchemaError(t, err)
}

func TestDecodeAnalyzeIssueRequest_DuplicateFilesKeepOrder(t *testing.T) {
	payload := `{"owner":"foo","repo":"bar","filteredFiles":[` +
		`{"name":"b.py","path":"b.py","download_url":"http://x/b.py"},` +
		`{"name":"a.py","path":"a.py","download_url":"http://x/a.py"},` +
		`{"name":"b.py","path":"b.py","download_url":"http://x/b.py"}` +
		`],"issueDetails":{"owner":"foo","repo":"bar","title":"t","description":"d"}}`

	req, err := DecodeAnalyzeIssueRequest([]byte(payload))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var names []string
	for _, f := range req.FilteredFiles {
		names = append(names, f.Name)
	}
	if !reflect.DeepEqual(names, []string{"b.py", "a.py", "b.py"}) {
		t.Errorf("names = %v", names)
	}
}

func TestAnalyzeIssueRequest_RepoMismatch(t *testing.T) {
	req := &AnalyzeIssueRequest{Owner: "foo", Repo: "bar", IssueDetails: &IssueDetails{Owner: "foo", Repo: "baz"}}
	if !req.RepoMismatch() {
		t.Error("expected mismatch")
	}
	req.IssueDetails.Repo = "bar"
	if req.RepoMismatch() {
		t.Error("expected no mismatch")
	}
}
