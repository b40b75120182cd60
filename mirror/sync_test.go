package mirror

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/pmoellner/hausdeck/remote"
)

func testIntervals() Intervals {
	return Intervals{
		Active:    2 * time.Second,
		Idle:      10 * time.Second,
		IdleAfter: 30 * time.Second,
	}
}

func payloadWith(entities ...remote.EntitySummary) *remote.UIPayload {
	return &remote.UIPayload{
		Entities: entities,
		Logs:     []string{"boot"},
	}
}

func TestIntervalsFor(t *testing.T) {
	iv := testIntervals()
	require.Equal(t, 2*time.Second, iv.For(true))
	require.Equal(t, 10*time.Second, iv.For(false))
}

func TestCycleReplacesSnapshotWholesale(t *testing.T) {
	bridge := &stubBridge{
		uiPayload: func(context.Context) (*remote.UIPayload, error) {
			return payloadWith(remote.EntitySummary{EntityID: "light.desk", Included: true}), nil
		},
		bridgeInfo: func(context.Context) (*remote.BridgeInfo, error) {
			return &remote.BridgeInfo{BridgeName: "hausdeck"}, nil
		},
		runtimeConfig: func(context.Context) (*remote.RuntimeConfig, error) {
			return &remote.RuntimeConfig{Enabled: true}, nil
		},
	}
	sync := NewSynchronizer(bridge, testIntervals(), zerolog.Nop(), nil)

	require.Nil(t, sync.Current())
	sync.cycle(context.Background())

	snap := sync.Current()
	require.NotNil(t, snap)
	require.Equal(t, uint64(1), snap.Version)
	require.Len(t, snap.Entities, 1)
	require.Equal(t, "hausdeck", snap.Bridge.BridgeName)
	require.True(t, snap.Runtime.Enabled)
	require.Empty(t, sync.State().LastError)

	bridge.uiPayload = func(context.Context) (*remote.UIPayload, error) {
		return payloadWith(), nil
	}
	sync.cycle(context.Background())

	next := sync.Current()
	require.Equal(t, uint64(2), next.Version)
	require.Empty(t, next.Entities, "entities gone from the feed disappear with the new snapshot")
	require.NotSame(t, snap, next)
}

func TestPayloadFailureKeepsPreviousSnapshotVisible(t *testing.T) {
	bridge := &stubBridge{
		uiPayload: func(context.Context) (*remote.UIPayload, error) {
			return payloadWith(remote.EntitySummary{EntityID: "switch.fan"}), nil
		},
	}
	sync := NewSynchronizer(bridge, testIntervals(), zerolog.Nop(), nil)
	sync.cycle(context.Background())
	stale := sync.Current()
	require.NotNil(t, stale)

	bridge.uiPayload = func(context.Context) (*remote.UIPayload, error) {
		return nil, fmt.Errorf("bridge unreachable")
	}
	sync.cycle(context.Background())

	require.Same(t, stale, sync.Current(), "stale but visible")
	require.Equal(t, "bridge unreachable", sync.State().LastError)

	// Recovery clears the error.
	bridge.uiPayload = func(context.Context) (*remote.UIPayload, error) {
		return payloadWith(), nil
	}
	sync.cycle(context.Background())
	require.Empty(t, sync.State().LastError)
}

func TestPartialFailureCarriesDiagnosticsForward(t *testing.T) {
	bridge := &stubBridge{
		bridgeInfo: func(context.Context) (*remote.BridgeInfo, error) {
			return &remote.BridgeInfo{BridgeName: "first"}, nil
		},
	}
	sync := NewSynchronizer(bridge, testIntervals(), zerolog.Nop(), nil)
	sync.cycle(context.Background())

	bridge.bridgeInfo = func(context.Context) (*remote.BridgeInfo, error) {
		return nil, fmt.Errorf("diagnostics timeout")
	}
	bridge.uiPayload = func(context.Context) (*remote.UIPayload, error) {
		return payloadWith(remote.EntitySummary{EntityID: "light.new"}), nil
	}
	sync.cycle(context.Background())

	snap := sync.Current()
	require.Len(t, snap.Entities, 1, "entity list still advances")
	require.Equal(t, "first", snap.Bridge.BridgeName, "previous diagnostics carried forward")
	require.Equal(t, "diagnostics timeout", sync.State().LastError)
}

func TestStopAbandonsInFlightResponse(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	bridge := &stubBridge{
		uiPayload: func(context.Context) (*remote.UIPayload, error) {
			close(entered)
			<-release
			return payloadWith(remote.EntitySummary{EntityID: "light.late"}), nil
		},
	}
	sync := NewSynchronizer(bridge, testIntervals(), zerolog.Nop(), nil)

	done := make(chan struct{})
	go func() {
		sync.cycle(context.Background())
		close(done)
	}()

	<-entered
	sync.Stop()
	close(release)
	<-done

	require.Nil(t, sync.Current(), "a fetch resolving after Stop must be discarded")
}

func TestRefreshNowRunsOutOfBandCycle(t *testing.T) {
	bridge := &stubBridge{}
	// Long intervals so only the initial cycle and explicit refreshes run.
	iv := Intervals{Active: time.Hour, Idle: time.Hour, IdleAfter: time.Hour}
	sync := NewSynchronizer(bridge, iv, zerolog.Nop(), nil)
	sync.Start(context.Background())
	defer sync.Stop()

	require.Eventually(t, func() bool {
		return countCalls(bridge, "ui-payload") == 1
	}, time.Second, 5*time.Millisecond)

	sync.RefreshNow()
	require.Eventually(t, func() bool {
		return countCalls(bridge, "ui-payload") == 2
	}, time.Second, 5*time.Millisecond)
}

func TestRefreshNowAfterStopDoesNothing(t *testing.T) {
	bridge := &stubBridge{}
	sync := NewSynchronizer(bridge, testIntervals(), zerolog.Nop(), nil)
	sync.Stop()
	sync.RefreshNow()
	require.Empty(t, bridge.callLog())
}

func TestViewerActivitySelectsInterval(t *testing.T) {
	sync := NewSynchronizer(&stubBridge{}, testIntervals(), zerolog.Nop(), nil)

	state := sync.State()
	require.False(t, state.ViewerActive)
	require.Equal(t, 10*time.Second, state.Interval)

	sync.MarkViewerActive()
	state = sync.State()
	require.True(t, state.ViewerActive)
	require.Equal(t, 2*time.Second, state.Interval)
}

func countCalls(bridge *stubBridge, name string) int {
	count := 0
	for _, call := range bridge.callLog() {
		if call == name {
			count++
		}
	}
	return count
}
