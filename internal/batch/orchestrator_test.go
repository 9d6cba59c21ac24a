package batch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"promptforge/internal/format"
	"promptforge/internal/generation"
)

func TestMain(m *testing.M) {
	// opencensus (via a transitive dependency) starts a global worker
	// goroutine at package init that can never be stopped from here.
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

// mockClient records every request and answers via fn (or a canned
// labeled-pair response when fn is nil).
type mockClient struct {
	mu    sync.Mutex
	calls []generation.Request
	fn    func(call int, req generation.Request) (string, error)
}

func (m *mockClient) Generate(ctx context.Context, req generation.Request) (string, error) {
	m.mu.Lock()
	n := len(m.calls)
	m.calls = append(m.calls, req)
	m.mu.Unlock()

	if m.fn != nil {
		return m.fn(n, req)
	}
	return "English: out\nChinese: 翻译", nil
}

func (m *mockClient) Model() string { return "mock" }

func (m *mockClient) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *mockClient) promptAt(i int) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[i].Parts[0].Text
}

func testOrchestrator(client generation.Client, q *Queue) *Orchestrator {
	cfg := OrchestratorConfig{EmptyRetries: 0, EmptyRetryDelay: time.Millisecond}
	return NewOrchestrator(client, q, format.Default(), cfg)
}

func runConfig() RunConfig {
	return RunConfig{Instruction: "rewrite", OutputsPerRound: 1, TotalRounds: 1, Translation: true}
}

func TestRunNoOpWhenNothingEligible(t *testing.T) {
	q := NewQueue()
	id := q.Add("done already")
	item, _ := q.Get(id)
	item.Status = StatusSuccess
	item.RoundsCompleted = 1
	item.Outputs = []ResultUnit{{Primary: "old"}}
	require.NoError(t, q.Update(item))

	before := q.Items()
	client := &mockClient{}
	o := testOrchestrator(client, q)

	require.NoError(t, o.Run(context.Background(), runConfig(), RunOptions{}))

	assert.Equal(t, 0, client.callCount(), "no-op run must not call the API")
	if diff := cmp.Diff(before, q.Items()); diff != "" {
		t.Errorf("no-op run mutated state (-before +after):\n%s", diff)
	}
}

func TestRunSequentialOrdering(t *testing.T) {
	q := NewQueue()
	ids := []string{q.Add("alpha"), q.Add("beta"), q.Add("gamma")}

	var orderErr error
	client := &mockClient{}
	client.fn = func(call int, req generation.Request) (string, error) {
		// Before call k, item k-1's final status must already be
		// committed to the queue.
		if call > 0 {
			prev, _ := q.Get(ids[call-1])
			if prev.Status != StatusSuccess && orderErr == nil {
				orderErr = errors.New("previous item not committed before next call")
			}
		}
		return "English: v", nil
	}
	o := testOrchestrator(client, q)

	require.NoError(t, o.Run(context.Background(), runConfig(), RunOptions{}))
	require.NoError(t, orderErr)
	require.Equal(t, 3, client.callCount())

	for i, source := range []string{"alpha", "beta", "gamma"} {
		assert.Contains(t, client.promptAt(i), source, "call %d should carry item %d", i, i)
	}
}

func TestRunPartialFailureIsolation(t *testing.T) {
	q := NewQueue()
	ids := []string{q.Add("one"), q.Add("two"), q.Add("three")}

	client := &mockClient{}
	client.fn = func(call int, req generation.Request) (string, error) {
		if strings.Contains(req.Parts[0].Text, "Source text:\ntwo") {
			return "", errors.New("quota exhausted")
		}
		return "English: fine", nil
	}
	o := testOrchestrator(client, q)

	require.NoError(t, o.Run(context.Background(), runConfig(), RunOptions{}))

	first, _ := q.Get(ids[0])
	second, _ := q.Get(ids[1])
	third, _ := q.Get(ids[2])

	assert.Equal(t, StatusSuccess, first.Status)
	assert.Equal(t, StatusError, second.Status)
	assert.Equal(t, "quota exhausted", second.Error)
	assert.Equal(t, StatusSuccess, third.Status, "one item's failure must not abort the batch")
}

func TestRunEmptyResultMarksError(t *testing.T) {
	q := NewQueue()
	id := q.Add("stubborn")

	client := &mockClient{fn: func(int, generation.Request) (string, error) { return "", nil }}
	o := NewOrchestrator(client, q, format.Default(), OrchestratorConfig{EmptyRetries: 1, EmptyRetryDelay: time.Millisecond})

	require.NoError(t, o.Run(context.Background(), runConfig(), RunOptions{}))

	item, _ := q.Get(id)
	assert.Equal(t, StatusError, item.Status)
	assert.Equal(t, EmptyResultMessage, item.Error)
	assert.Equal(t, 2, client.callCount(), "initial call plus one empty retry")
}

func TestRunRetryOnEmptyRecoversRound(t *testing.T) {
	q := NewQueue()
	id := q.Add("flaky")

	client := &mockClient{fn: func(call int, _ generation.Request) (string, error) {
		if call == 0 {
			return "", nil
		}
		return "English: recovered", nil
	}}
	o := NewOrchestrator(client, q, format.Default(), OrchestratorConfig{EmptyRetries: 2, EmptyRetryDelay: time.Millisecond})

	require.NoError(t, o.Run(context.Background(), runConfig(), RunOptions{}))

	item, _ := q.Get(id)
	assert.Equal(t, StatusSuccess, item.Status)
	require.Len(t, item.Outputs, 1)
	assert.Equal(t, "recovered", item.Outputs[0].Primary)
	assert.Equal(t, 2, client.callCount())
}

func TestRunStopMidBatch(t *testing.T) {
	q := NewQueue()
	first := q.Add("first")
	second := q.Add("second")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := &mockClient{fn: func(call int, _ generation.Request) (string, error) {
		// Stop is requested while the first call is in flight; the
		// call completes and the run halts before the next item.
		cancel()
		return "English: done", nil
	}}
	o := testOrchestrator(client, q)

	require.NoError(t, o.Run(ctx, runConfig(), RunOptions{}))

	got1, _ := q.Get(first)
	got2, _ := q.Get(second)
	assert.Equal(t, StatusSuccess, got1.Status, "in-flight item finishes")
	assert.Equal(t, StatusIdle, got2.Status, "untouched items keep their prior status")
	assert.Empty(t, got2.Error)
	assert.Equal(t, 1, client.callCount())
	assert.False(t, o.Running())
}

func TestRunPauseResume(t *testing.T) {
	q := NewQueue()
	a := q.Add("a")
	b := q.Add("b")

	firstStarted := make(chan struct{})
	release := make(chan struct{})
	client := &mockClient{fn: func(call int, _ generation.Request) (string, error) {
		if call == 0 {
			close(firstStarted)
			<-release
		}
		return "English: ok", nil
	}}
	o := testOrchestrator(client, q)

	done := make(chan error, 1)
	go func() {
		done <- o.Run(context.Background(), runConfig(), RunOptions{})
	}()

	<-firstStarted
	o.Control().Pause()
	close(release)

	// While paused, no new round starts.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, client.callCount(), "paused run must not issue new calls")

	o.Control().Resume()
	require.NoError(t, <-done)

	assert.Equal(t, 2, client.callCount())
	got1, _ := q.Get(a)
	got2, _ := q.Get(b)
	assert.Equal(t, StatusSuccess, got1.Status)
	assert.Equal(t, StatusSuccess, got2.Status)
}

func TestRunSingleTarget(t *testing.T) {
	q := NewQueue()
	q.Add("other")
	target := q.Add("target")

	client := &mockClient{}
	o := testOrchestrator(client, q)

	require.NoError(t, o.Run(context.Background(), runConfig(), RunOptions{SingleTargetID: target}))

	assert.Equal(t, 1, client.callCount())
	assert.Contains(t, client.promptAt(0), "target")

	items := q.Items()
	assert.Equal(t, StatusIdle, items[0].Status, "non-target item untouched")
	assert.Equal(t, StatusSuccess, items[1].Status)
}

func TestRunPerItemOverrides(t *testing.T) {
	q := NewQueue()
	id := q.Add("special")
	require.NoError(t, q.SetOverrides(id, Overrides{Instruction: "be dramatic", Rounds: 2}))

	client := &mockClient{}
	o := testOrchestrator(client, q)

	require.NoError(t, o.Run(context.Background(), runConfig(), RunOptions{}))

	assert.Equal(t, 2, client.callCount(), "override round count shadows the global one")
	assert.Contains(t, client.promptAt(0), "be dramatic")

	item, _ := q.Get(id)
	assert.Equal(t, 2, item.RoundsCompleted)
	assert.Len(t, item.Outputs, 2)
}

func TestRunCatchUpRounds(t *testing.T) {
	q := NewQueue()
	id := q.Add("partial")
	item, _ := q.Get(id)
	item.Status = StatusSuccess
	item.RoundsCompleted = 1
	item.Outputs = []ResultUnit{{Primary: "round one"}}
	require.NoError(t, q.Update(item))

	client := &mockClient{}
	o := testOrchestrator(client, q)

	cfg := runConfig()
	cfg.TotalRounds = 3
	require.NoError(t, o.Run(context.Background(), cfg, RunOptions{}))

	assert.Equal(t, 2, client.callCount(), "only the owed rounds run")
	got, _ := q.Get(id)
	assert.Equal(t, 3, got.RoundsCompleted)
	assert.Len(t, got.Outputs, 3, "catch-up rounds append, never reset")
	assert.Equal(t, "round one", got.Outputs[0].Primary)
}

func TestRunEditDuringProcessingAppliesNextRound(t *testing.T) {
	q := NewQueue()
	id := q.Add("before-edit")
	require.NoError(t, q.SetOverrides(id, Overrides{Rounds: 2}))

	client := &mockClient{}
	client.fn = func(call int, _ generation.Request) (string, error) {
		if call == 0 {
			// Edits land while round 1's call is in flight.
			require.NoError(t, q.EditSource(id, "after-edit"))
			require.NoError(t, q.SetOverrides(id, Overrides{Rounds: 2, Instruction: "sound dramatic"}))
		}
		return "English: v", nil
	}
	o := testOrchestrator(client, q)

	require.NoError(t, o.Run(context.Background(), runConfig(), RunOptions{}))

	require.Equal(t, 2, client.callCount())
	assert.Contains(t, client.promptAt(0), "before-edit")
	assert.Contains(t, client.promptAt(1), "after-edit", "edit takes effect at the next round boundary")
	assert.Contains(t, client.promptAt(1), "sound dramatic")

	// Round commits must not have written the stale copy back.
	final, _ := q.Get(id)
	assert.Equal(t, "after-edit", final.SourceText, "in-flight edit survives the round commit")
	assert.Equal(t, "sound dramatic", final.Overrides.Instruction)
	assert.Equal(t, StatusSuccess, final.Status)
}

func TestRunRejectsConcurrentRuns(t *testing.T) {
	q := NewQueue()
	q.Add("slow")

	started := make(chan struct{})
	release := make(chan struct{})
	client := &mockClient{fn: func(int, generation.Request) (string, error) {
		close(started)
		<-release
		return "English: ok", nil
	}}
	o := testOrchestrator(client, q)

	done := make(chan error, 1)
	go func() {
		done <- o.Run(context.Background(), runConfig(), RunOptions{})
	}()

	<-started
	assert.ErrorIs(t, o.Run(context.Background(), runConfig(), RunOptions{}), ErrRunInProgress)
	assert.True(t, o.Running())

	close(release)
	require.NoError(t, <-done)
	assert.False(t, o.Running())
}

func TestRunGroupedRoutesByIndex(t *testing.T) {
	q := NewQueue()
	ids := []string{q.Add("one"), q.Add("two"), q.Add("three")}

	client := &mockClient{fn: func(int, generation.Request) (string, error) {
		return "[1] rewritten one|||一\nnoise line\n[2] rewritten two", nil
	}}
	o := testOrchestrator(client, q)

	require.NoError(t, o.RunGrouped(context.Background(), runConfig()))
	assert.Equal(t, 1, client.callCount(), "grouped run issues a single call")

	first, _ := q.Get(ids[0])
	second, _ := q.Get(ids[1])
	third, _ := q.Get(ids[2])

	require.Equal(t, StatusSuccess, first.Status)
	assert.Equal(t, "rewritten one", first.Outputs[0].Primary)
	assert.Equal(t, "一", first.Outputs[0].Secondary)

	require.Equal(t, StatusSuccess, second.Status)
	assert.Equal(t, "rewritten two", second.Outputs[0].Primary)

	assert.Equal(t, StatusError, third.Status, "dropped line leaves the item with no outputs")
	assert.Equal(t, EmptyResultMessage, third.Error)
}

func TestRunGroupedFailureMarksAll(t *testing.T) {
	q := NewQueue()
	ids := []string{q.Add("one"), q.Add("two")}

	client := &mockClient{fn: func(int, generation.Request) (string, error) {
		return "", errors.New("model offline")
	}}
	o := testOrchestrator(client, q)

	require.NoError(t, o.RunGrouped(context.Background(), runConfig()))

	for _, id := range ids {
		item, _ := q.Get(id)
		assert.Equal(t, StatusError, item.Status)
		assert.Equal(t, "model offline", item.Error)
	}
}

func TestCommitHookSeesSnapshots(t *testing.T) {
	q := NewQueue()
	q.Add("item")

	var mu sync.Mutex
	var snapshots int
	client := &mockClient{}
	o := testOrchestrator(client, q)
	o.SetCommitHook(func(items []WorkItem) {
		mu.Lock()
		snapshots++
		mu.Unlock()
	})

	require.NoError(t, o.Run(context.Background(), runConfig(), RunOptions{}))

	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, snapshots, 2, "at least the Processing and final commits")
}

func TestEventsCarryProgress(t *testing.T) {
	q := NewQueue()
	q.Add("item")

	client := &mockClient{}
	o := testOrchestrator(client, q)

	require.NoError(t, o.Run(context.Background(), runConfig(), RunOptions{}))

	var types []EventType
	for {
		select {
		case ev := <-o.Events():
			types = append(types, ev.Type)
			continue
		default:
		}
		break
	}
	assert.Contains(t, types, EventRunStarted)
	assert.Contains(t, types, EventItemStarted)
	assert.Contains(t, types, EventItemDone)
	assert.Contains(t, types, EventRunDone)
}
