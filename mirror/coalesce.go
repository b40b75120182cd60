package mirror

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// CommitFunc persists the final coalesced value of one edit key.
type CommitFunc func(ctx context.Context, key, value string)

// Coalescer batches rapid edits per key. Each Schedule call restarts the
// key's quiescence window; when the window elapses without another edit,
// the latest value is committed exactly once. Keys are independent: edits
// on one key never delay another key's commit.
type Coalescer struct {
	window time.Duration
	commit CommitFunc
	logger zerolog.Logger

	mu      sync.Mutex
	pending map[string]*pendingEdit
	closed  bool
}

type pendingEdit struct {
	value string
	timer *time.Timer
	seq   uint64
}

// NewCoalescer creates a coalescer with the given quiescence window.
func NewCoalescer(window time.Duration, commit CommitFunc, logger zerolog.Logger) *Coalescer {
	if window <= 0 {
		window = 350 * time.Millisecond
	}
	return &Coalescer{
		window:  window,
		commit:  commit,
		logger:  logger.With().Str("component", "coalesce").Logger(),
		pending: make(map[string]*pendingEdit),
	}
}

// Schedule records the newest value for a key and restarts its window.
// Intermediate values are discarded; only the value standing when the
// window elapses is committed.
func (c *Coalescer) Schedule(ctx context.Context, key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	if edit, ok := c.pending[key]; ok {
		edit.value = value
		edit.seq++
		seq := edit.seq
		edit.timer.Stop()
		edit.timer = time.AfterFunc(c.window, func() { c.fire(ctx, key, seq) })
		return
	}

	edit := &pendingEdit{value: value}
	edit.timer = time.AfterFunc(c.window, func() { c.fire(ctx, key, 0) })
	c.pending[key] = edit
}

// Pending returns the uncommitted value for a key, if any. The display
// layer reads it to echo in-flight edits instead of the snapshot value.
func (c *Coalescer) Pending(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	edit, ok := c.pending[key]
	if !ok {
		return "", false
	}
	return edit.value, true
}

// Flush commits a key immediately if an edit is pending.
func (c *Coalescer) Flush(ctx context.Context, key string) {
	c.mu.Lock()
	edit, ok := c.pending[key]
	if !ok || c.closed {
		c.mu.Unlock()
		return
	}
	edit.timer.Stop()
	delete(c.pending, key)
	value := edit.value
	c.mu.Unlock()

	c.commit(ctx, key, value)
}

// fire runs on a key's timer. A stale sequence means Schedule superseded
// this timer after it was armed but before it could cancel; the newer
// timer will commit instead.
func (c *Coalescer) fire(ctx context.Context, key string, seq uint64) {
	c.mu.Lock()
	edit, ok := c.pending[key]
	if !ok || c.closed || edit.seq != seq {
		c.mu.Unlock()
		return
	}
	delete(c.pending, key)
	value := edit.value
	c.mu.Unlock()

	c.logger.Debug().Str("key", key).Msg("committing coalesced edit")
	c.commit(ctx, key, value)
}

// Close cancels every pending edit without committing. Used on teardown so
// half-typed values are never flushed to the bridge.
func (c *Coalescer) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for key, edit := range c.pending {
		edit.timer.Stop()
		delete(c.pending, key)
	}
}
