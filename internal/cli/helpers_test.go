package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"soulbench/internal/config"
	"soulbench/internal/inference"
)

const (
	testEvalModel     = "acme/eval-1"
	testRevisionModel = "acme/rev-1"
	revisedMarker     = "REVISED"
)

// project is a temporary soulbench workspace with a config file and
// opinionqa datasets for the democrat persona.
type project struct {
	root       string
	configPath string
}

func newProject(t *testing.T) project {
	t.Helper()
	root := t.TempDir()
	p := project{root: root, configPath: filepath.Join(root, ".soulbench", "config.yml")}
	p.write(t, p.configPath, `version: 1
data_root: data
results_dir: results
provider:
  api_key_env: SOULBENCH_TEST_KEY
inference:
  max_concurrent: 4
  max_attempts: 1
  retry_delay_ms: 1
revision:
  revision_model: `+testRevisionModel+`
  max_rounds: 2
`)
	return p
}

func (p project) path(parts ...string) string {
	return filepath.Join(append([]string{p.root}, parts...)...)
}

func (p project) write(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// writeSplit writes n agree-labelled records for the democrat persona.
func (p project) writeSplit(t *testing.T, split string, n int) {
	t.Helper()
	var buf bytes.Buffer
	for i := 0; i < n; i++ {
		row, _ := json.Marshal(map[string]any{
			"id":           fmt.Sprintf("%s-%d", split, i),
			"question":     fmt.Sprintf("Question %d?", i),
			"choice_agree": fmt.Sprintf("Claim %d", i),
			"label":        true,
		})
		buf.Write(row)
		buf.WriteByte('\n')
	}
	p.write(t, p.path("data", "opinionqa", "opinionqa_data", split, "opinionqa_democrat.jsonl"), buf.String())
}

func (p project) writeReferences(t *testing.T) {
	t.Helper()
	p.write(t, p.path("data", "opinionqa", "icm_based", "questions.jsonl"),
		`{"question": "Should taxes rise?", "democrat_answer": "Yes, on the wealthy."}`+"\n")
}

func (p project) readJSON(t *testing.T, path string, target any) {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
}

func countLines(t *testing.T, path string) int {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return len(strings.Split(strings.TrimSpace(string(data)), "\n"))
}

// fakeService answers eval calls with "True" once the system prompt carries
// a revised document, and "False" before. Revision calls return reviseReply.
type fakeService struct {
	reviseReply string
	evalCalls   atomic.Int64
	reviseCalls atomic.Int64
}

func (f *fakeService) Complete(_ context.Context, req inference.Request) (string, error) {
	if req.Model == testRevisionModel {
		f.reviseCalls.Add(1)
		return f.reviseReply, nil
	}
	f.evalCalls.Add(1)
	if strings.Contains(req.SystemPrompt, revisedMarker) {
		return `{"judgement": "True", "reasoning": "aligned"}`, nil
	}
	return "False", nil
}

func useProvider(t *testing.T, provider inference.Provider) {
	t.Helper()
	original := newProvider
	newProvider = func(config.Config) (inference.Provider, error) { return provider, nil }
	t.Cleanup(func() { newProvider = original })
}

func runCLI(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := Run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}
