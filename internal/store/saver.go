package store

import (
	"sync"
	"time"
	"unicode/utf8"

	"promptforge/internal/batch"
	"promptforge/internal/logging"
)

// DebouncedSaver coalesces snapshot writes: rapid queue mutations during
// a run collapse into one write per debounce window. Only the latest
// snapshot for a scope survives; intermediates are superseded, never
// lost, because every snapshot is the full queue state.
type DebouncedSaver struct {
	store         *Store
	window        time.Duration
	maxFieldBytes int

	mu      sync.Mutex
	pending map[string][]batch.WorkItem
	timer   *time.Timer
	seq     int
	closed  bool
	wg      sync.WaitGroup
}

// NewDebouncedSaver creates a saver over the store. maxFieldBytes bounds
// SourceText/Primary/Secondary; oversized fields are truncated rather
// than failing the whole write. Zero disables truncation.
func NewDebouncedSaver(s *Store, window time.Duration, maxFieldBytes int) *DebouncedSaver {
	if window <= 0 {
		window = 2 * time.Second
	}
	return &DebouncedSaver{
		store:         s,
		window:        window,
		maxFieldBytes: maxFieldBytes,
		pending:       make(map[string][]batch.WorkItem),
	}
}

// Queue schedules a snapshot for writing. Later snapshots for the same
// scope replace earlier unwritten ones.
func (d *DebouncedSaver) Queue(scope string, items []batch.WorkItem) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}

	d.pending[scope] = items
	d.stopTimerLocked()

	// A fresh timer per Queue call: Reset on an already-fired AfterFunc
	// can double-fire against a single WaitGroup add.
	d.wg.Add(1)
	d.seq++
	seq := d.seq
	d.timer = time.AfterFunc(d.window, func() { d.fire(seq) })
}

// Flush writes any pending snapshots immediately.
func (d *DebouncedSaver) Flush() {
	d.mu.Lock()
	d.stopTimerLocked()
	batches := d.takePendingLocked()
	d.mu.Unlock()

	d.write(batches)
}

// Close flushes pending snapshots and stops the saver. Queue calls after
// Close are ignored.
func (d *DebouncedSaver) Close() {
	d.mu.Lock()
	d.closed = true
	d.stopTimerLocked()
	batches := d.takePendingLocked()
	d.mu.Unlock()

	d.write(batches)
	d.wg.Wait()
}

// stopTimerLocked cancels the armed timer if it has not fired yet,
// settling its WaitGroup slot. Caller holds d.mu.
func (d *DebouncedSaver) stopTimerLocked() {
	if d.timer == nil {
		return
	}
	if d.timer.Stop() {
		d.wg.Done()
	}
	d.timer = nil
}

// takePendingLocked swaps out the pending map. Caller holds d.mu.
func (d *DebouncedSaver) takePendingLocked() map[string][]batch.WorkItem {
	batches := d.pending
	d.pending = make(map[string][]batch.WorkItem)
	return batches
}

// fire runs when a debounce window elapses.
func (d *DebouncedSaver) fire(seq int) {
	defer d.wg.Done()

	d.mu.Lock()
	if d.seq == seq {
		d.timer = nil
	}
	batches := d.takePendingLocked()
	d.mu.Unlock()

	d.write(batches)
}

func (d *DebouncedSaver) write(batches map[string][]batch.WorkItem) {
	for scope, items := range batches {
		truncated := d.truncateItems(items)
		if err := d.store.SaveSnapshot(scope, truncated); err != nil {
			logging.StoreError("debounced save for scope %s failed: %v", scope, err)
		}
	}
}

// truncateItems bounds text fields to maxFieldBytes so one oversized
// item cannot sink the snapshot.
func (d *DebouncedSaver) truncateItems(items []batch.WorkItem) []batch.WorkItem {
	if d.maxFieldBytes <= 0 {
		return items
	}

	out := make([]batch.WorkItem, len(items))
	for i, item := range items {
		c := item.Clone()
		if len(c.SourceText) > d.maxFieldBytes {
			logging.StoreWarn("truncating oversized source text on item %s (%d bytes)", c.ID, len(c.SourceText))
			c.SourceText = truncateUTF8(c.SourceText, d.maxFieldBytes)
		}
		for j := range c.Outputs {
			if len(c.Outputs[j].Primary) > d.maxFieldBytes {
				c.Outputs[j].Primary = truncateUTF8(c.Outputs[j].Primary, d.maxFieldBytes)
			}
			if len(c.Outputs[j].Secondary) > d.maxFieldBytes {
				c.Outputs[j].Secondary = truncateUTF8(c.Outputs[j].Secondary, d.maxFieldBytes)
			}
		}
		out[i] = c
	}
	return out
}

// truncateUTF8 cuts s to at most max bytes without splitting a rune.
func truncateUTF8(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := s[:max]
	for len(cut) > 0 && !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	return cut
}
