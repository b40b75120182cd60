package mirror

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pmoellner/hausdeck/remote"
	"github.com/pmoellner/hausdeck/telemetry"
)

// Intervals selects the poll period from viewer activity.
type Intervals struct {
	// Active applies while somebody is watching the dashboard.
	Active time.Duration
	// Idle applies when nobody is.
	Idle time.Duration
	// IdleAfter is how long after the last viewer contact the schedule is
	// still considered watched.
	IdleAfter time.Duration
}

// For returns the poll interval for the given visibility. Pure, so the
// schedule policy is testable without any platform visibility hook.
func (iv Intervals) For(active bool) time.Duration {
	if active {
		return iv.Active
	}
	return iv.Idle
}

// SyncState describes the synchronizer for status displays.
type SyncState struct {
	LastError    string        `json:"last_error,omitempty"`
	LastCycleAt  time.Time     `json:"last_cycle_at"`
	Interval     time.Duration `json:"-"`
	IntervalMS   float64       `json:"interval_ms"`
	ViewerActive bool          `json:"viewer_active"`
}

// Synchronizer owns the snapshot and keeps it fresh by polling the bridge.
//
// Each cycle fetches the snapshot payload, the diagnostics record and the
// runtime config in parallel. A payload failure keeps the previous snapshot
// visible; diagnostics or runtime failures carry the previous values
// forward while the entity list still updates. Every failure collapses to
// one human-readable message, never a blanked screen.
type Synchronizer struct {
	bridge    remote.Bridge
	intervals Intervals
	logger    zerolog.Logger
	collector telemetry.Collector

	holder snapshotHolder

	mu        sync.Mutex
	stopped   bool
	started   bool
	lastErr   string
	lastCycle time.Time
	lastSeen  time.Time

	refreshCh chan struct{}
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// NewSynchronizer creates a synchronizer; Start begins polling.
func NewSynchronizer(bridge remote.Bridge, intervals Intervals, logger zerolog.Logger, collector telemetry.Collector) *Synchronizer {
	if collector == nil {
		collector = telemetry.Noop()
	}
	return &Synchronizer{
		bridge:    bridge,
		intervals: intervals,
		logger:    logger.With().Str("component", "sync").Logger(),
		collector: collector,
		refreshCh: make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Current returns the latest snapshot, or nil before the first successful
// poll.
func (s *Synchronizer) Current() *Snapshot {
	return s.holder.Current()
}

// State reports the synchronizer status.
func (s *Synchronizer) State() SyncState {
	s.mu.Lock()
	defer s.mu.Unlock()
	active := s.viewerActiveLocked(time.Now())
	interval := s.intervals.For(active)
	return SyncState{
		LastError:    s.lastErr,
		LastCycleAt:  s.lastCycle,
		Interval:     interval,
		IntervalMS:   float64(interval) / float64(time.Millisecond),
		ViewerActive: active,
	}
}

// MarkViewerActive records viewer contact; the dashboard calls this on
// every request so the poll schedule speeds up while somebody watches.
func (s *Synchronizer) MarkViewerActive() {
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

func (s *Synchronizer) viewerActiveLocked(now time.Time) bool {
	if s.lastSeen.IsZero() {
		return false
	}
	return now.Sub(s.lastSeen) <= s.intervals.IdleAfter
}

func (s *Synchronizer) interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.intervals.For(s.viewerActiveLocked(time.Now()))
}

// Start runs the poll loop until Stop is called or the context is
// cancelled. The first cycle runs immediately.
func (s *Synchronizer) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	go s.run(ctx)
}

func (s *Synchronizer) run(ctx context.Context) {
	defer close(s.doneCh)

	s.cycle(ctx)
	timer := time.NewTimer(s.interval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.markStopped()
			return
		case <-s.stopCh:
			return
		case <-timer.C:
			s.cycle(ctx)
			timer.Reset(s.interval())
		case <-s.refreshCh:
			// Out-of-band refresh; the running timer keeps its phase.
			s.cycle(ctx)
		}
	}
}

// RefreshNow triggers an out-of-cycle fetch without resetting the
// schedule. Multiple pending requests collapse into one.
func (s *Synchronizer) RefreshNow() {
	s.mu.Lock()
	stopped := s.stopped
	s.mu.Unlock()
	if stopped {
		return
	}
	select {
	case s.refreshCh <- struct{}{}:
	default:
	}
}

// Stop ends the poll loop. A fetch still in flight is abandoned: its
// result is discarded instead of being written into current state.
func (s *Synchronizer) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	started := s.started
	s.mu.Unlock()

	close(s.stopCh)
	if started {
		<-s.doneCh
	}
}

func (s *Synchronizer) markStopped() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
}

// cycle performs one fetch round. The three remote views are fetched in
// parallel; results are applied under the state lock only if the
// synchronizer has not been stopped in the meantime.
func (s *Synchronizer) cycle(ctx context.Context) {
	start := time.Now()

	var (
		wg         sync.WaitGroup
		payload    *remote.UIPayload
		info       *remote.BridgeInfo
		runtime    *remote.RuntimeConfig
		payloadErr error
		infoErr    error
		runtimeErr error
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		payload, payloadErr = s.bridge.UIPayload(ctx)
	}()
	go func() {
		defer wg.Done()
		info, infoErr = s.bridge.BridgeInfo(ctx)
	}()
	go func() {
		defer wg.Done()
		runtime, runtimeErr = s.bridge.RuntimeConfig(ctx)
	}()
	wg.Wait()

	duration := time.Since(start)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		// Resolved after teardown: discard.
		return
	}

	prev := s.holder.Current()
	result := "ok"
	errMsg := ""

	switch {
	case payloadErr != nil:
		// Stale but visible: the previous snapshot stays on screen.
		result = "error"
		errMsg = payloadErr.Error()
		s.logger.Warn().Err(payloadErr).Msg("snapshot fetch failed")
	default:
		next := &Snapshot{
			FetchedAt: time.Now(),
			Config:    payload.Config,
			Entities:  payload.Entities,
			Logs:      payload.Logs,
			Sync:      payload.Sync,
			Patina:    payload.Patina,
		}
		if infoErr == nil {
			next.Bridge = info
		} else {
			result = "partial"
			errMsg = infoErr.Error()
			if prev != nil {
				next.Bridge = prev.Bridge
			}
			s.logger.Warn().Err(infoErr).Msg("bridge info fetch failed")
		}
		if runtimeErr == nil {
			next.Runtime = runtime
		} else {
			result = "partial"
			errMsg = runtimeErr.Error()
			if prev != nil {
				next.Runtime = prev.Runtime
			}
			s.logger.Warn().Err(runtimeErr).Msg("runtime config fetch failed")
		}
		s.holder.replace(next)
		s.collector.SetEntityCounts(len(next.Entities), next.IncludedCount())
	}

	s.lastErr = errMsg
	s.lastCycle = time.Now()
	s.collector.ObservePollCycle(result, duration)
	s.logger.Debug().Str("result", result).Dur("duration", duration).Msg("poll cycle finished")
}
