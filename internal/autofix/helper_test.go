package autofix

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stitchcd/stitch/api/schemas"
)

// -- Shared Test Fixtures --

// scriptedResponse is one canned model answer, keyed by the finding file
// embedded in the prompt.
type scriptedResponse struct {
	content string
	err     error
	delay   time.Duration
}

// scriptedClient is an in-process LLM double. It resolves each request to a
// scripted response by scanning the prompt for a known file path, honours
// per-response latency, and aborts early when the request context expires.
type scriptedClient struct {
	mu        sync.Mutex
	responses map[string]scriptedResponse
	completed []string
}

func newScriptedClient() *scriptedClient {
	return &scriptedClient{responses: map[string]scriptedResponse{}}
}

func (s *scriptedClient) script(file string, resp scriptedResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[file] = resp
}

func (s *scriptedClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	s.mu.Lock()
	var file string
	var resp scriptedResponse
	for candidate, scripted := range s.responses {
		if strings.Contains(req.UserPrompt, "Source File ("+candidate+")") {
			file = candidate
			resp = scripted
			break
		}
	}
	s.mu.Unlock()

	if resp.delay > 0 {
		select {
		case <-time.After(resp.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	s.mu.Lock()
	s.completed = append(s.completed, file)
	s.mu.Unlock()

	if resp.err != nil {
		return "", resp.err
	}
	return resp.content, nil
}

func (s *scriptedClient) Close() error { return nil }

// completionOrder reports the files whose requests ran to completion, in
// the order they finished.
func (s *scriptedClient) completionOrder() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.completed...)
}

// makeTask builds a validated task the way the validator would, with the
// slot carrying the finding's position in the original document.
func makeTask(slot int, file, content string) schemas.ValidatedTask {
	return schemas.ValidatedTask{
		Slot: slot,
		Finding: schemas.Finding{
			Severity:   schemas.SeverityCritical,
			File:       file,
			Line:       1,
			Issue:      "issue in " + file,
			Suggestion: "fix " + file,
		},
		OriginalContent: content,
	}
}

// fixResponseJSON renders the strict-JSON payload the model is instructed
// to return.
func fixResponseJSON(t *testing.T, fixedCode, explanation string) string {
	t.Helper()
	payload, err := json.Marshal(map[string]string{
		"fixed_code":       fixedCode,
		"explanation":      explanation,
		"diff_description": "adjusted " + explanation,
	})
	require.NoError(t, err)
	return string(payload)
}
