package batch

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"promptforge/internal/format"
	"promptforge/internal/generation"
	"promptforge/internal/logging"
)

// ErrRunInProgress is returned when Run is called while another run owns
// the queue. An item is Processing for at most one run at a time.
var ErrRunInProgress = errors.New("a run is already in progress")

// EmptyResultMessage is recorded on items that finished a run with no
// outputs at all.
const EmptyResultMessage = "empty result"

// systemInstruction frames every generation call.
const systemInstruction = "You are a precise copywriting engine. Follow the format directives in the user prompt exactly."

// RunConfig is the effective per-run configuration. Per-item overrides
// shadow these fields.
type RunConfig struct {
	Instruction     string
	OutputsPerRound int
	TotalRounds     int
	Translation     bool
}

// RunOptions restricts or tunes a single run invocation.
type RunOptions struct {
	// SingleTargetID restricts the run to one item when non-empty.
	SingleTargetID string
}

// EventType tags orchestrator progress events.
type EventType int

const (
	EventRunStarted EventType = iota
	EventItemStarted
	EventRoundDone
	EventItemDone
	EventRunDone
)

// Event is one progress notification. Events are best-effort: a slow
// consumer drops events, never the run.
type Event struct {
	Type   EventType
	ItemID string
	Status Status
	// Round/Rounds report per-item round progress on EventRoundDone.
	Round  int
	Rounds int
	// Total is the eligible item count on EventRunStarted.
	Total int
	Err   string
}

// OrchestratorConfig tunes orchestrator behavior.
type OrchestratorConfig struct {
	// EmptyRetries and EmptyRetryDelay parameterize the retry-on-empty
	// policy applied to each round's generation call.
	EmptyRetries    int
	EmptyRetryDelay time.Duration
}

// DefaultOrchestratorConfig returns sensible defaults.
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		EmptyRetries:    3,
		EmptyRetryDelay: time.Second,
	}
}

// Orchestrator drives WorkItems through generation rounds: strictly in
// queue order, one API call in flight at a time, with per-item failure
// isolation.
type Orchestrator struct {
	client  generation.Client
	queue   *Queue
	desc    format.Descriptor
	config  OrchestratorConfig
	control *Control

	running atomic.Bool
	events  chan Event

	// commitHook observes every committed queue snapshot; wired to the
	// debounced saver by the CLI.
	commitHook func([]WorkItem)
}

// NewOrchestrator creates an orchestrator over the given queue.
func NewOrchestrator(client generation.Client, queue *Queue, desc format.Descriptor, config OrchestratorConfig) *Orchestrator {
	return &Orchestrator{
		client:  client,
		queue:   queue,
		desc:    desc,
		config:  config,
		control: NewControl(),
		events:  make(chan Event, 64),
	}
}

// Control returns the pause/resume gate for this orchestrator.
func (o *Orchestrator) Control() *Control {
	return o.control
}

// Events returns the progress event stream.
func (o *Orchestrator) Events() <-chan Event {
	return o.events
}

// Running reports whether a run currently owns the queue.
func (o *Orchestrator) Running() bool {
	return o.running.Load()
}

// SetCommitHook registers a callback invoked with a full queue snapshot
// after every committed status transition. Must be set before Run.
func (o *Orchestrator) SetCommitHook(hook func([]WorkItem)) {
	o.commitHook = hook
}

// Run drives every eligible item through its owed rounds. Items are
// processed strictly in queue order; one item's failure never aborts the
// others. Stop is the context's cancellation, observed only at item and
// round boundaries; an eligible-set of zero is a no-op.
func (o *Orchestrator) Run(ctx context.Context, cfg RunConfig, opts RunOptions) error {
	if cfg.OutputsPerRound < 1 {
		cfg.OutputsPerRound = 1
	}
	if cfg.TotalRounds < 1 {
		cfg.TotalRounds = 1
	}

	if !o.running.CompareAndSwap(false, true) {
		return ErrRunInProgress
	}
	defer o.running.Store(false)

	eligible := o.selectEligible(cfg, opts)
	if len(eligible) == 0 {
		logging.Batch("run: nothing eligible, no-op")
		return nil
	}

	logging.Batch("run: starting over %d item(s) (rounds=%d outputs=%d translation=%v)",
		len(eligible), cfg.TotalRounds, cfg.OutputsPerRound, cfg.Translation)
	o.emit(Event{Type: EventRunStarted, Total: len(eligible)})
	defer o.emit(Event{Type: EventRunDone})

	for _, id := range eligible {
		// Stop check at the top of the item loop: items not yet
		// started keep their prior status.
		if ctx.Err() != nil {
			logging.Batch("run: stop observed, %s and later items untouched", id)
			break
		}
		o.processItem(ctx, id, cfg)
	}

	logging.Batch("run: finished")
	return nil
}

// selectEligible returns, in queue order, the IDs owed work under cfg.
func (o *Orchestrator) selectEligible(cfg RunConfig, opts RunOptions) []string {
	var ids []string
	for _, item := range o.queue.Items() {
		if opts.SingleTargetID != "" && item.ID != opts.SingleTargetID {
			continue
		}
		if itemEligible(item, cfg) {
			ids = append(ids, item.ID)
		}
	}
	return ids
}

func itemEligible(item WorkItem, cfg RunConfig) bool {
	switch item.Status {
	case StatusIdle, StatusError:
		return true
	case StatusSuccess:
		return item.RoundsCompleted < item.EffectiveRounds(cfg.TotalRounds)
	default:
		return false
	}
}

// processItem runs one item through its owed rounds and finalizes its
// status. All failure modes are local to the item.
func (o *Orchestrator) processItem(ctx context.Context, id string, cfg RunConfig) {
	item, ok := o.queue.Get(id)
	if !ok {
		return
	}

	item.Status = StatusProcessing
	item.Error = ""
	o.commit(item)
	o.emit(Event{Type: EventItemStarted, ItemID: id, Status: StatusProcessing})

	target := item.EffectiveRounds(cfg.TotalRounds)
	roundsNeeded := target - item.RoundsCompleted

	var callErr error
	for r := 0; r < roundsNeeded; r++ {
		// Stop and pause are observed only here, at the round
		// boundary; an in-flight call always completes or raises.
		if ctx.Err() != nil {
			break
		}
		if err := o.control.await(ctx); err != nil {
			break
		}

		// Re-read the item at the top of each round: user edits made
		// while Processing apply to the next round, never mid-round.
		item, ok = o.queue.Get(id)
		if !ok {
			return
		}

		text, err := o.generateRound(ctx, item, cfg)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			callErr = err
			logging.BatchError("item %s round %d/%d failed: %v", id, r+1, target, err)
			break
		}

		pairs := format.ParseResponse(text, o.desc)
		if len(pairs) == 0 {
			// Round is skipped, not counted; later rounds still run.
			logging.BatchWarn("item %s round %d/%d produced no output, skipping round", id, r+1, target)
			continue
		}

		now := time.Now()
		for _, p := range pairs {
			item.Outputs = append(item.Outputs, ResultUnit{
				Primary:   p.Primary,
				Secondary: p.Secondary,
				CreatedAt: now,
			})
		}
		item.RoundsCompleted++
		o.commit(item)
		o.emit(Event{Type: EventRoundDone, ItemID: id, Status: StatusProcessing, Round: item.RoundsCompleted, Rounds: target})
	}

	// Finalize from the freshest committed copy.
	final, ok := o.queue.Get(id)
	if !ok {
		return
	}
	switch {
	case callErr != nil:
		final.Status = StatusError
		final.Error = callErr.Error()
	case len(final.Outputs) == 0:
		final.Status = StatusError
		final.Error = EmptyResultMessage
	default:
		final.Status = StatusSuccess
		final.Error = ""
	}
	o.commit(final)
	o.emit(Event{Type: EventItemDone, ItemID: id, Status: final.Status, Err: final.Error})
	logging.Batch("item %s finalized: %s", id, final.Status)
}

// generateRound builds the prompt for one round and calls the client with
// retry-on-empty semantics.
func (o *Orchestrator) generateRound(ctx context.Context, item WorkItem, cfg RunConfig) (string, error) {
	prompt := format.BuildPrompt(
		o.desc,
		item.SourceText,
		item.EffectiveInstruction(cfg.Instruction),
		item.EffectiveOutputsPerRound(cfg.OutputsPerRound),
		cfg.Translation,
	)

	call := func(ctx context.Context) (string, error) {
		return o.client.Generate(ctx, generation.Request{
			SystemInstruction: systemInstruction,
			Parts:             []generation.Part{generation.TextPart(prompt)},
		})
	}
	return generation.RetryOnEmpty(ctx, call, generation.IsBlank, o.config.EmptyRetries, o.config.EmptyRetryDelay)
}

// RunGrouped drives all eligible items through a single grouped call using
// the indexed-line convention: one prompt, one response, each numbered
// line routed back to its item. Lines the model garbles are dropped and
// the affected items finalize from whatever outputs they already hold.
func (o *Orchestrator) RunGrouped(ctx context.Context, cfg RunConfig) error {
	if !o.running.CompareAndSwap(false, true) {
		return ErrRunInProgress
	}
	defer o.running.Store(false)

	ids := o.selectEligible(cfg, RunOptions{})
	if len(ids) == 0 {
		logging.Batch("grouped run: nothing eligible, no-op")
		return nil
	}

	o.emit(Event{Type: EventRunStarted, Total: len(ids)})
	defer o.emit(Event{Type: EventRunDone})

	// Remember prior statuses so a cancellation can restore them.
	prior := make(map[string]Status, len(ids))
	texts := make([]string, 0, len(ids))
	for _, id := range ids {
		item, ok := o.queue.Get(id)
		if !ok {
			continue
		}
		prior[id] = item.Status
		texts = append(texts, item.SourceText)
		item.Status = StatusProcessing
		item.Error = ""
		o.commit(item)
	}

	prompt := format.BuildIndexedPrompt(o.desc, texts, cfg.Instruction, cfg.Translation)
	call := func(ctx context.Context) (string, error) {
		return o.client.Generate(ctx, generation.Request{
			SystemInstruction: systemInstruction,
			Parts:             []generation.Part{generation.TextPart(prompt)},
		})
	}
	text, err := generation.RetryOnEmpty(ctx, call, generation.IsBlank, o.config.EmptyRetries, o.config.EmptyRetryDelay)
	if err != nil {
		if ctx.Err() != nil {
			// Cancelled: restore prior statuses, nothing was routed.
			for _, id := range ids {
				if item, ok := o.queue.Get(id); ok {
					item.Status = prior[id]
					o.commit(item)
				}
			}
			return nil
		}
		logging.BatchError("grouped run failed: %v", err)
		for _, id := range ids {
			if item, ok := o.queue.Get(id); ok {
				item.Status = StatusError
				item.Error = err.Error()
				o.commit(item)
				o.emit(Event{Type: EventItemDone, ItemID: id, Status: StatusError, Err: item.Error})
			}
		}
		return nil
	}

	pairs := format.ParseIndexed(text, o.desc, len(ids))
	now := time.Now()
	for i, id := range ids {
		item, ok := o.queue.Get(id)
		if !ok {
			continue
		}
		if pairs[i] != nil {
			item.Outputs = append(item.Outputs, ResultUnit{
				Primary:   pairs[i].Primary,
				Secondary: pairs[i].Secondary,
				CreatedAt: now,
			})
			item.RoundsCompleted++
		}
		if len(item.Outputs) == 0 {
			item.Status = StatusError
			item.Error = EmptyResultMessage
		} else {
			item.Status = StatusSuccess
			item.Error = ""
		}
		o.commit(item)
		o.emit(Event{Type: EventItemDone, ItemID: id, Status: item.Status, Err: item.Error})
	}

	logging.Batch("grouped run: finished over %d item(s)", len(ids))
	return nil
}

// commit stores the run-owned fields of the item and notifies the
// persistence hook. The item copy in hand may predate a concurrent user
// edit, so SourceText and Overrides are never written back here.
func (o *Orchestrator) commit(item WorkItem) {
	if err := o.queue.ApplyRunState(item); err != nil {
		logging.BatchWarn("commit for %s failed: %v", item.ID, err)
		return
	}
	if o.commitHook != nil {
		o.commitHook(o.queue.Items())
	}
}

// emit sends an event without ever blocking the run.
func (o *Orchestrator) emit(ev Event) {
	select {
	case o.events <- ev:
	default:
	}
}

// Describe returns a short human-readable summary of an event, used by
// plain (non-TUI) progress output.
func Describe(ev Event) string {
	switch ev.Type {
	case EventRunStarted:
		return fmt.Sprintf("run started: %d item(s)", ev.Total)
	case EventItemStarted:
		return fmt.Sprintf("processing %s", ev.ItemID)
	case EventRoundDone:
		return fmt.Sprintf("%s: round %d/%d", ev.ItemID, ev.Round, ev.Rounds)
	case EventItemDone:
		if ev.Err != "" {
			return fmt.Sprintf("%s: %s (%s)", ev.ItemID, ev.Status, ev.Err)
		}
		return fmt.Sprintf("%s: %s", ev.ItemID, ev.Status)
	case EventRunDone:
		return "run finished"
	default:
		return fmt.Sprintf("event(%d)", ev.Type)
	}
}
