package mirror

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pmoellner/hausdeck/telemetry"
)

// ErrActionBusy rejects a second invocation of an action that is still in
// flight. The caller keeps its control disabled instead of queueing.
var ErrActionBusy = errors.New("action already in progress")

// Refresher is the post-action resync hook; the synchronizer satisfies it.
type Refresher interface {
	RefreshNow()
}

// NoticeKind classifies a notice.
type NoticeKind string

const (
	NoticeSuccess NoticeKind = "success"
	NoticeFailure NoticeKind = "failure"
)

// Notice is one transient outcome message shown to the operator.
type Notice struct {
	Kind    NoticeKind `json:"kind"`
	Label   string     `json:"label"`
	Message string     `json:"message,omitempty"`
	At      time.Time  `json:"at"`
}

// Runner executes bridge actions with per-label in-flight guards.
//
// Every completed action, success or failure, is followed by an immediate
// out-of-band refresh so the display reconciles with whatever the bridge
// actually did. Failures surface as notices; nothing retries on its own.
type Runner struct {
	refresher Refresher
	collector telemetry.Collector
	logger    zerolog.Logger
	noticeTTL time.Duration

	mu      sync.Mutex
	busy    map[string]struct{}
	notices []Notice
}

// NewRunner creates an action runner. Notices expire after ttl; zero means
// a 6 second default.
func NewRunner(refresher Refresher, collector telemetry.Collector, logger zerolog.Logger, ttl time.Duration) *Runner {
	if collector == nil {
		collector = telemetry.Noop()
	}
	if ttl <= 0 {
		ttl = 6 * time.Second
	}
	return &Runner{
		refresher: refresher,
		collector: collector,
		logger:    logger.With().Str("component", "actions").Logger(),
		noticeTTL: ttl,
		busy:      make(map[string]struct{}),
	}
}

// Run executes the action under the given label. While it runs, further
// calls with the same label fail with ErrActionBusy; distinct labels run
// concurrently. The action's error is returned as-is.
func (r *Runner) Run(ctx context.Context, label string, action func(ctx context.Context) error) error {
	r.mu.Lock()
	if _, inFlight := r.busy[label]; inFlight {
		r.mu.Unlock()
		return ErrActionBusy
	}
	r.busy[label] = struct{}{}
	r.mu.Unlock()

	err := action(ctx)

	r.mu.Lock()
	delete(r.busy, label)
	if err != nil {
		r.notices = append(r.notices, Notice{
			Kind:    NoticeFailure,
			Label:   label,
			Message: err.Error(),
			At:      time.Now(),
		})
	} else {
		r.notices = append(r.notices, Notice{
			Kind:  NoticeSuccess,
			Label: label,
			At:    time.Now(),
		})
	}
	r.mu.Unlock()

	if err != nil {
		r.collector.IncActionFailure(label)
		r.logger.Warn().Err(err).Str("label", label).Msg("action failed")
	} else {
		r.logger.Debug().Str("label", label).Msg("action completed")
	}

	// Resync regardless of outcome; the bridge may have changed state even
	// on an error response.
	if r.refresher != nil {
		r.refresher.RefreshNow()
	}
	return err
}

// BusyLabels returns the labels with actions currently in flight, sorted.
func (r *Runner) BusyLabels() []string {
	r.mu.Lock()
	labels := make([]string, 0, len(r.busy))
	for label := range r.busy {
		labels = append(labels, label)
	}
	r.mu.Unlock()
	sort.Strings(labels)
	return labels
}

// Busy reports whether the label currently has an action in flight.
func (r *Runner) Busy(label string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, inFlight := r.busy[label]
	return inFlight
}

// Notices returns the unexpired notices, oldest first.
func (r *Runner) Notices() []Notice {
	cutoff := time.Now().Add(-r.noticeTTL)
	r.mu.Lock()
	defer r.mu.Unlock()
	keep := r.notices[:0]
	for _, n := range r.notices {
		if n.At.After(cutoff) {
			keep = append(keep, n)
		}
	}
	r.notices = keep
	return append([]Notice(nil), keep...)
}
