package autofix

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/stitchcd/stitch/api/schemas"
)

// -- Test Cases: Fan-Out and Ordering --

func TestDispatch_OutcomesAlignWithTasks(t *testing.T) {
	defer goleak.VerifyNone(t)

	client := newScriptedClient()
	client.script("a.go", scriptedResponse{content: "answer-a"})
	client.script("b.go", scriptedResponse{content: "answer-b"})
	client.script("c.go", scriptedResponse{content: "answer-c"})

	// Sparse slots: rejected candidates leave gaps in the slot sequence.
	tasks := []schemas.ValidatedTask{
		makeTask(0, "a.go", "package a\n"),
		makeTask(2, "b.go", "package b\n"),
		makeTask(5, "c.go", "package c\n"),
	}

	d := NewDispatcher(client, 5*time.Second, zap.NewNop())
	outcomes := d.Dispatch(context.Background(), tasks)

	require.Len(t, outcomes, 3)
	assert.Equal(t, "answer-a", outcomes[0].content)
	assert.Equal(t, "answer-b", outcomes[1].content)
	assert.Equal(t, "answer-c", outcomes[2].content)
	for _, outcome := range outcomes {
		assert.NoError(t, outcome.err)
	}
}

func TestDispatch_StaggeredLatencyDoesNotReorderOutcomes(t *testing.T) {
	defer goleak.VerifyNone(t)

	client := newScriptedClient()
	client.script("slow.go", scriptedResponse{content: "answer-slow", delay: 150 * time.Millisecond})
	client.script("mid.go", scriptedResponse{content: "answer-mid", delay: 75 * time.Millisecond})
	client.script("fast.go", scriptedResponse{content: "answer-fast"})

	tasks := []schemas.ValidatedTask{
		makeTask(0, "slow.go", "x"),
		makeTask(1, "mid.go", "x"),
		makeTask(2, "fast.go", "x"),
	}

	d := NewDispatcher(client, 5*time.Second, zap.NewNop())
	outcomes := d.Dispatch(context.Background(), tasks)

	// Responses arrived in reverse, outcomes stay in task order.
	assert.Equal(t, []string{"fast.go", "mid.go", "slow.go"}, client.completionOrder())
	require.Len(t, outcomes, 3)
	assert.Equal(t, "answer-slow", outcomes[0].content)
	assert.Equal(t, "answer-mid", outcomes[1].content)
	assert.Equal(t, "answer-fast", outcomes[2].content)
}

// -- Test Cases: Failure Isolation --

func TestDispatch_OneFailureDoesNotCancelSiblings(t *testing.T) {
	defer goleak.VerifyNone(t)

	client := newScriptedClient()
	client.script("a.go", scriptedResponse{content: "answer-a", delay: 40 * time.Millisecond})
	client.script("broken.go", scriptedResponse{err: errors.New("upstream exploded")})
	client.script("c.go", scriptedResponse{content: "answer-c", delay: 40 * time.Millisecond})

	tasks := []schemas.ValidatedTask{
		makeTask(0, "a.go", "x"),
		makeTask(1, "broken.go", "x"),
		makeTask(2, "c.go", "x"),
	}

	core, logs := observer.New(zap.DebugLevel)
	d := NewDispatcher(client, 5*time.Second, zap.New(core))
	outcomes := d.Dispatch(context.Background(), tasks)

	require.Len(t, outcomes, 3)
	assert.NoError(t, outcomes[0].err)
	assert.Equal(t, "answer-a", outcomes[0].content)
	require.Error(t, outcomes[1].err)
	assert.NoError(t, outcomes[2].err)
	assert.Equal(t, "answer-c", outcomes[2].content)

	// Verification: the failure is logged with its classification.
	failLogs := logs.FilterMessage("Fix request failed")
	require.Equal(t, 1, failLogs.Len())
	fields := failLogs.All()[0].ContextMap()
	assert.Equal(t, "broken.go", fields["file"])
	assert.Equal(t, "request-failed", fields["reason"])

	doneLogs := logs.FilterMessage("Dispatch phase complete")
	require.Equal(t, 1, doneLogs.Len())
	assert.Equal(t, int64(1), doneLogs.All()[0].ContextMap()["failed"])
}

func TestDispatch_PerRequestTimeout(t *testing.T) {
	defer goleak.VerifyNone(t)

	client := newScriptedClient()
	client.script("hung.go", scriptedResponse{content: "never", delay: 2 * time.Second})
	client.script("a.go", scriptedResponse{content: "answer-a"})

	tasks := []schemas.ValidatedTask{
		makeTask(0, "hung.go", "x"),
		makeTask(1, "a.go", "x"),
	}

	core, logs := observer.New(zap.DebugLevel)
	d := NewDispatcher(client, 80*time.Millisecond, zap.New(core))

	start := time.Now()
	outcomes := d.Dispatch(context.Background(), tasks)

	// The hung request is cut off at its own deadline, not the test's.
	assert.Less(t, time.Since(start), time.Second)
	require.Len(t, outcomes, 2)
	require.Error(t, outcomes[0].err)
	assert.ErrorIs(t, outcomes[0].err, context.DeadlineExceeded)
	assert.Equal(t, "answer-a", outcomes[1].content)

	failLogs := logs.FilterMessage("Fix request failed")
	require.Equal(t, 1, failLogs.Len())
	assert.Equal(t, "timeout", failLogs.All()[0].ContextMap()["reason"])
}

func TestDispatch_AllRequestsFail(t *testing.T) {
	defer goleak.VerifyNone(t)

	client := newScriptedClient()
	client.script("a.go", scriptedResponse{err: errors.New("boom")})
	client.script("b.go", scriptedResponse{err: errors.New("boom")})

	tasks := []schemas.ValidatedTask{
		makeTask(0, "a.go", "x"),
		makeTask(1, "b.go", "x"),
	}

	core, logs := observer.New(zap.DebugLevel)
	d := NewDispatcher(client, time.Second, zap.New(core))
	outcomes := d.Dispatch(context.Background(), tasks)

	require.Len(t, outcomes, 2)
	assert.Error(t, outcomes[0].err)
	assert.Error(t, outcomes[1].err)

	doneLogs := logs.FilterMessage("Dispatch phase complete")
	require.Equal(t, 1, doneLogs.Len())
	assert.Equal(t, int64(2), doneLogs.All()[0].ContextMap()["failed"])
}

func TestDispatch_NoTasks(t *testing.T) {
	defer goleak.VerifyNone(t)

	d := NewDispatcher(newScriptedClient(), time.Second, zap.NewNop())
	outcomes := d.Dispatch(context.Background(), nil)

	assert.Empty(t, outcomes)
}

// -- Test Cases: Error Classification --

func TestClassifyDispatchError(t *testing.T) {
	assert.Equal(t, "timeout", classifyDispatchError(context.DeadlineExceeded))
	assert.Equal(t, "timeout", classifyDispatchError(fmt.Errorf("wrapped: %w", context.DeadlineExceeded)))
	assert.Equal(t, "canceled", classifyDispatchError(context.Canceled))
	assert.Equal(t, "request-failed", classifyDispatchError(errors.New("anything else")))
}
