package batch

import (
	"fmt"
	"strings"
	"sync"

	"promptforge/internal/logging"
)

// Queue is the ordered collection of WorkItems shared between the
// orchestrator and the UI/CLI layer. Every mutation is a whole-item
// replace under the lock; readers only ever see committed items.
type Queue struct {
	mu    sync.RWMutex
	items []WorkItem
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Add appends a new Idle item for the given text and returns its ID.
func (q *Queue) Add(sourceText string) string {
	item := NewWorkItem(sourceText)

	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()

	logging.SessionDebug("queue: added item %s (len=%d)", item.ID, len(sourceText))
	return item.ID
}

// AddBulk splits text on newlines and appends one Idle item per non-blank
// line. Returns the new item IDs in order.
func (q *Queue) AddBulk(text string) []string {
	var ids []string
	q.mu.Lock()
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		item := NewWorkItem(line)
		q.items = append(q.items, item)
		ids = append(ids, item.ID)
	}
	q.mu.Unlock()

	logging.Session("queue: bulk added %d item(s)", len(ids))
	return ids
}

// Get returns a copy of the item with the given ID.
func (q *Queue) Get(id string) (WorkItem, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	for i := range q.items {
		if q.items[i].ID == id {
			return q.items[i].Clone(), true
		}
	}
	return WorkItem{}, false
}

// Items returns a deep-copied snapshot of the queue in order.
func (q *Queue) Items() []WorkItem {
	q.mu.RLock()
	defer q.mu.RUnlock()

	out := make([]WorkItem, len(q.items))
	for i := range q.items {
		out[i] = q.items[i].Clone()
	}
	return out
}

// Len returns the number of items.
func (q *Queue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.items)
}

// Update replaces the stored item with the given one, keyed by ID.
// The replace is atomic: no partially mutated item is ever visible.
func (q *Queue) Update(item WorkItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i := range q.items {
		if q.items[i].ID == item.ID {
			q.items[i] = item.Clone()
			return nil
		}
	}
	return fmt.Errorf("no item with id %s", item.ID)
}

// ApplyRunState stores the run-owned fields of an item: Status, Outputs,
// RoundsCompleted, and Error. SourceText and Overrides stay as stored, so
// a user edit landing while a round is in flight survives the commit and
// takes effect at the next round boundary.
func (q *Queue) ApplyRunState(item WorkItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i := range q.items {
		if q.items[i].ID == item.ID {
			c := item.Clone()
			q.items[i].Status = c.Status
			q.items[i].Outputs = c.Outputs
			q.items[i].RoundsCompleted = c.RoundsCompleted
			q.items[i].Error = c.Error
			return nil
		}
	}
	return fmt.Errorf("no item with id %s", item.ID)
}

// EditSource sets a new source text on an item. Permitted at any time; a
// run picks the edit up at its next round boundary.
func (q *Queue) EditSource(id, sourceText string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i := range q.items {
		if q.items[i].ID == id {
			q.items[i].SourceText = sourceText
			return nil
		}
	}
	return fmt.Errorf("no item with id %s", id)
}

// SetOverrides replaces an item's per-item configuration overrides.
func (q *Queue) SetOverrides(id string, ov Overrides) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i := range q.items {
		if q.items[i].ID == id {
			q.items[i].Overrides = ov
			return nil
		}
	}
	return fmt.Errorf("no item with id %s", id)
}

// Remove deletes the item with the given ID.
func (q *Queue) Remove(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i := range q.items {
		if q.items[i].ID == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return true
		}
	}
	return false
}

// Clear removes all items.
func (q *Queue) Clear() {
	q.mu.Lock()
	n := len(q.items)
	q.items = nil
	q.mu.Unlock()

	logging.Session("queue: cleared %d item(s)", n)
}

// Regenerate resets an item for a fresh run: outputs dropped, rounds
// zeroed, status Idle.
func (q *Queue) Regenerate(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i := range q.items {
		if q.items[i].ID == id {
			q.items[i].Outputs = nil
			q.items[i].RoundsCompleted = 0
			q.items[i].Status = StatusIdle
			q.items[i].Error = ""
			return nil
		}
	}
	return fmt.Errorf("no item with id %s", id)
}

// RetryErrors re-queues every Error item as Idle, preserving any partial
// outputs already gathered. Returns the number of items re-queued.
func (q *Queue) RetryErrors() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for i := range q.items {
		if q.items[i].Status == StatusError {
			q.items[i].Status = StatusIdle
			q.items[i].Error = ""
			n++
		}
	}
	if n > 0 {
		logging.Session("queue: re-queued %d error item(s)", n)
	}
	return n
}

// Load replaces the whole queue with the given items (used when restoring
// a persisted snapshot). Items arriving as Processing are demoted to Idle:
// a snapshot taken mid-run has no live run to own them.
func (q *Queue) Load(items []WorkItem) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = make([]WorkItem, len(items))
	for i := range items {
		q.items[i] = items[i].Clone()
		if q.items[i].Status == StatusProcessing {
			q.items[i].Status = StatusIdle
		}
	}
}
