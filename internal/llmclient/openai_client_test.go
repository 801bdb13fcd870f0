package llmclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/stitchcd/stitch/api/schemas"
)

// -- Test Setup Helpers --

// setupOpenAIClient points an OpenAIClient at a mock HTTP server and returns
// the client plus a log observer for asserting on structured log output.
func setupOpenAIClient(t *testing.T, handler http.HandlerFunc) (*OpenAIClient, *httptest.Server, *observer.ObservedLogs) {
	t.Helper()
	if handler == nil {
		handler = func(w http.ResponseWriter, r *http.Request) {
			t.Log("Warning: Unexpected HTTP request in test.")
			w.WriteHeader(http.StatusNotFound)
		}
	}
	server := httptest.NewServer(handler)

	loggerCore, observedLogs := observer.New(zap.DebugLevel)
	logger := zap.New(loggerCore)

	cfg := getValidLLMConfig()
	cfg.Endpoint = server.URL

	client, err := NewOpenAIClient(cfg, logger)
	require.NoError(t, err, "NewOpenAIClient initialization failed")

	t.Cleanup(server.Close)
	return client, server, observedLogs
}

// createTestRequest provides a standard generation request structure.
func createTestRequest() schemas.GenerationRequest {
	return schemas.GenerationRequest{
		SystemPrompt: "System prompt instructions.",
		UserPrompt:   "User query.",
		Options: schemas.GenerationOptions{
			Temperature: 0.1,
		},
	}
}

// successResponse builds a minimal chat completion body with the given content.
func successResponse(content string) chatCompletionResponse {
	var out chatCompletionResponse
	out.Choices = append(out.Choices, struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	}{FinishReason: "stop"})
	out.Choices[0].Message.Role = "assistant"
	out.Choices[0].Message.Content = content
	out.Usage.PromptTokens = 100
	out.Usage.CompletionTokens = 50
	out.Usage.TotalTokens = 150
	return out
}

// -- Test Cases: Initialization (NewOpenAIClient) --

func TestNewOpenAIClient_Success(t *testing.T) {
	logger := setupTestLogger(t)
	cfg := getValidLLMConfig()
	cfg.Endpoint = "https://api.example.com/v1/"

	client, err := NewOpenAIClient(cfg, logger)

	require.NoError(t, err)
	require.NotNil(t, client)
	assert.Equal(t, cfg.Model, client.model)
	assert.Equal(t, cfg.MaxTokens, client.maxTokens)
	// Trailing slashes collapse so the request path does not double up.
	assert.Equal(t, "https://api.example.com/v1", client.client.BaseURL)
}

func TestNewOpenAIClient_Failure_MissingAPIKey(t *testing.T) {
	logger := setupTestLogger(t)
	cfg := getValidLLMConfig()
	cfg.APIKey = ""

	client, err := NewOpenAIClient(cfg, logger)

	assert.Error(t, err)
	assert.Nil(t, client)
	assert.Contains(t, err.Error(), "API key is required")
}

func TestNewOpenAIClient_Failure_MissingEndpoint(t *testing.T) {
	logger := setupTestLogger(t)
	cfg := getValidLLMConfig()
	cfg.Endpoint = ""

	client, err := NewOpenAIClient(cfg, logger)

	assert.Error(t, err)
	assert.Nil(t, client)
	assert.Contains(t, err.Error(), "endpoint is required")
}

// -- Test Cases: Generate - Success Scenarios --

// Verifies a successful call end to end: request shape, auth header, response
// parsing, and the usage fields in the completion log entry.
func TestOpenAIGenerate_Success(t *testing.T) {
	expectedContent := `{"fixed_code": "package main"}`

	handler := func(w http.ResponseWriter, r *http.Request) {
		// 1. Verify Request Integrity
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer test-api-key", r.Header.Get("Authorization"))

		// 2. Verify Request Body Structure
		var payload chatCompletionRequest
		err := json.NewDecoder(r.Body).Decode(&payload)
		require.NoError(t, err, "Server received invalid JSON payload")
		assert.Equal(t, "test-model", payload.Model)
		require.Len(t, payload.Messages, 2)
		assert.Equal(t, "system", payload.Messages[0].Role)
		assert.Equal(t, "System prompt instructions.", payload.Messages[0].Content)
		assert.Equal(t, "user", payload.Messages[1].Role)
		assert.Equal(t, "User query.", payload.Messages[1].Content)
		assert.Equal(t, 0.1, payload.Temperature)
		assert.Equal(t, 1024, payload.MaxTokens)
		assert.Nil(t, payload.ResponseFormat, "JSON mode must be off unless requested")

		// 3. Send Mock Success Response
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(successResponse(expectedContent))
	}

	client, _, observedLogs := setupOpenAIClient(t, handler)

	response, err := client.Generate(context.Background(), createTestRequest())

	assert.NoError(t, err)
	assert.Equal(t, expectedContent, response)

	// Verify the completion log carries token usage.
	debugLogs := observedLogs.FilterLevelExact(zap.DebugLevel)
	require.Equal(t, 1, debugLogs.Len(), "Expected one debug entry for successful generation")
	logEntry := debugLogs.All()[0]
	assert.Equal(t, "LLM generation complete (chat completions)", logEntry.Message)
	assert.Equal(t, int64(100), logEntry.ContextMap()["prompt_tokens"])
	assert.Equal(t, int64(50), logEntry.ContextMap()["completion_tokens"])
	assert.NotNil(t, logEntry.ContextMap()["duration"])
}

// Verifies response_format and the per-request MaxTokens override reach the wire.
func TestOpenAIGenerate_JSONModeAndMaxTokensOverride(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		var payload chatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		require.NotNil(t, payload.ResponseFormat)
		assert.Equal(t, "json_object", payload.ResponseFormat.Type)
		assert.Equal(t, 2048, payload.MaxTokens)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(successResponse("{}"))
	}

	client, _, _ := setupOpenAIClient(t, handler)
	req := createTestRequest()
	req.Options.ForceJSONFormat = true
	req.Options.MaxTokens = 2048

	_, err := client.Generate(context.Background(), req)
	assert.NoError(t, err)
}

// -- Test Cases: Generate - Error Handling --

// Verifies error statuses surface as *APIError and that exactly one request
// is made. Retrying is the caller's decision, never the transport's.
func TestOpenAIGenerate_APIErrorNoRetry(t *testing.T) {
	var attemptCounter int32
	errorBody := `{"error": {"message": "model overloaded"}}`

	handler := func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attemptCounter, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(errorBody))
	}

	client, _, observedLogs := setupOpenAIClient(t, handler)

	response, err := client.Generate(context.Background(), createTestRequest())

	assert.Error(t, err)
	assert.Empty(t, response)
	assert.Equal(t, int32(1), atomic.LoadInt32(&attemptCounter), "Transport must not retry on its own")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "model overloaded")
	assert.True(t, apiErr.Retryable())

	errorLogs := observedLogs.FilterLevelExact(zap.ErrorLevel)
	require.Equal(t, 1, errorLogs.Len())
	logEntry := errorLogs.All()[0]
	assert.Equal(t, "Chat endpoint returned error status", logEntry.Message)
	assert.Equal(t, int64(503), logEntry.ContextMap()["status"])
}

// Verifies oversized error bodies are truncated before they reach the error.
func TestOpenAIGenerate_APIErrorBodyTruncated(t *testing.T) {
	longBody := make([]byte, 4096)
	for i := range longBody {
		longBody[i] = 'x'
	}

	handler := func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write(longBody)
	}

	client, _, _ := setupOpenAIClient(t, handler)

	_, err := client.Generate(context.Background(), createTestRequest())

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Len(t, apiErr.Body, 1024+len("..."))
	assert.False(t, apiErr.Retryable(), "4xx statuses are not retryable")
}

func TestOpenAIGenerate_Failure_NoChoices(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"choices": [], "usage": {}}`))
	}

	client, _, _ := setupOpenAIClient(t, handler)

	response, err := client.Generate(context.Background(), createTestRequest())

	assert.Error(t, err)
	assert.Empty(t, response)
	assert.Contains(t, err.Error(), "returned no choices")
}

func TestOpenAIGenerate_Failure_EmptyContent(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		resp := successResponse("")
		resp.Choices[0].FinishReason = "length"
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(resp)
	}

	client, _, _ := setupOpenAIClient(t, handler)

	_, err := client.Generate(context.Background(), createTestRequest())

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "empty completion")
	assert.Contains(t, err.Error(), "length", "finish_reason should surface in the error")
}

// Verifies network level failures come back wrapped, not as *APIError.
func TestOpenAIGenerate_NetworkError(t *testing.T) {
	client, server, _ := setupOpenAIClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("Handler reached despite server being closed.")
	})
	server.Close()

	_, err := client.Generate(context.Background(), createTestRequest())

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to execute chat completion request")
	var apiErr *APIError
	assert.False(t, errors.As(err, &apiErr), "Connection failures are not API errors")
}

// Verifies the per-request deadline cuts off a slow endpoint.
func TestOpenAIGenerate_ContextDeadline(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		// The server only watches for client disconnects (and cancels
		// r.Context()) once the request body has been consumed.
		io.Copy(io.Discard, r.Body)
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
			t.Error("Handler outlived the client deadline.")
		}
	}

	client, _, _ := setupOpenAIClient(t, handler)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	startTime := time.Now()
	_, err := client.Generate(ctx, createTestRequest())
	duration := time.Since(startTime)

	assert.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "Error should carry context.DeadlineExceeded, got: %v", err)
	assert.Less(t, duration, 2*time.Second, "Generate should abort promptly at the deadline")
}

// -- Test Cases: APIError Classification --

func TestAPIErrorRetryable(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusInternalServerError, true},
		{http.StatusBadGateway, true},
		{http.StatusServiceUnavailable, true},
		{http.StatusGatewayTimeout, true},
		{http.StatusBadRequest, false},
		{http.StatusUnauthorized, false},
		{http.StatusForbidden, false},
		{http.StatusNotFound, false},
	}

	for _, tt := range tests {
		err := &APIError{StatusCode: tt.status, Body: "body"}
		assert.Equal(t, tt.retryable, err.Retryable(), "status %d", tt.status)
	}
}
