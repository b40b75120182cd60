package mirror

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type commitRecorder struct {
	mu      sync.Mutex
	commits []commitRecord
}

type commitRecord struct {
	key   string
	value string
}

func (r *commitRecorder) commit(_ context.Context, key, value string) {
	r.mu.Lock()
	r.commits = append(r.commits, commitRecord{key: key, value: value})
	r.mu.Unlock()
}

func (r *commitRecorder) all() []commitRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]commitRecord(nil), r.commits...)
}

func TestCoalescerCommitsOnlyTheFinalValue(t *testing.T) {
	rec := &commitRecorder{}
	co := NewCoalescer(30*time.Millisecond, rec.commit, zerolog.Nop())
	defer co.Close()

	ctx := context.Background()
	co.Schedule(ctx, "alias/light.desk", "K")
	co.Schedule(ctx, "alias/light.desk", "Ki")
	co.Schedule(ctx, "alias/light.desk", "Kit")

	value, pending := co.Pending("alias/light.desk")
	require.True(t, pending)
	require.Equal(t, "Kit", value)

	require.Eventually(t, func() bool {
		return len(rec.all()) == 1
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, []commitRecord{{key: "alias/light.desk", value: "Kit"}}, rec.all())

	_, pending = co.Pending("alias/light.desk")
	require.False(t, pending, "committed edits leave the pending set")

	// Quiet period: no extra commit ever fires.
	time.Sleep(80 * time.Millisecond)
	require.Len(t, rec.all(), 1)
}

func TestCoalescerEditDuringWindowRestartsIt(t *testing.T) {
	rec := &commitRecorder{}
	co := NewCoalescer(60*time.Millisecond, rec.commit, zerolog.Nop())
	defer co.Close()

	ctx := context.Background()
	co.Schedule(ctx, "alias/x", "a")
	time.Sleep(35 * time.Millisecond)
	co.Schedule(ctx, "alias/x", "ab")
	time.Sleep(35 * time.Millisecond)
	// 70ms elapsed overall, but only 35ms since the last edit.
	require.Empty(t, rec.all())

	require.Eventually(t, func() bool {
		return len(rec.all()) == 1
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, "ab", rec.all()[0].value)
}

func TestCoalescerKeysAreIndependent(t *testing.T) {
	rec := &commitRecorder{}
	co := NewCoalescer(30*time.Millisecond, rec.commit, zerolog.Nop())
	defer co.Close()

	ctx := context.Background()
	co.Schedule(ctx, "alias/a", "first")
	time.Sleep(20 * time.Millisecond)
	// Keeps key a's window from being disturbed by key b traffic.
	co.Schedule(ctx, "alias/b", "second")

	require.Eventually(t, func() bool {
		return len(rec.all()) == 2
	}, time.Second, 5*time.Millisecond)

	commits := rec.all()
	require.Equal(t, "alias/a", commits[0].key, "earlier key commits first")
	require.Equal(t, "first", commits[0].value)
	require.Equal(t, "alias/b", commits[1].key)
}

func TestCoalescerFlushCommitsImmediately(t *testing.T) {
	rec := &commitRecorder{}
	co := NewCoalescer(time.Hour, rec.commit, zerolog.Nop())
	defer co.Close()

	ctx := context.Background()
	co.Schedule(ctx, "alias/x", "now")
	co.Flush(ctx, "alias/x")

	require.Equal(t, []commitRecord{{key: "alias/x", value: "now"}}, rec.all())
	co.Flush(ctx, "alias/x") // no pending edit, no-op
	require.Len(t, rec.all(), 1)
}

func TestCoalescerCloseCancelsPendingEdits(t *testing.T) {
	rec := &commitRecorder{}
	co := NewCoalescer(20*time.Millisecond, rec.commit, zerolog.Nop())

	ctx := context.Background()
	co.Schedule(ctx, "alias/x", "half-typed")
	co.Close()

	time.Sleep(60 * time.Millisecond)
	require.Empty(t, rec.all(), "teardown must not flush pending edits")

	co.Schedule(ctx, "alias/y", "late")
	_, pending := co.Pending("alias/y")
	require.False(t, pending, "a closed coalescer accepts nothing")
}
