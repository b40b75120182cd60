package mirror

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/pmoellner/hausdeck/remote"
)

type patchCapture struct {
	mu      sync.Mutex
	patches []remote.EntityPatch
}

func (p *patchCapture) hook(_ context.Context, patch remote.EntityPatch) (*remote.UIConfig, error) {
	p.mu.Lock()
	p.patches = append(p.patches, patch)
	p.mu.Unlock()
	return &remote.UIConfig{}, nil
}

func (p *patchCapture) all() []remote.EntityPatch {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]remote.EntityPatch(nil), p.patches...)
}

func newTestConsole(bridge *stubBridge, window time.Duration) (*Console, *countingRefresher, *Runner) {
	refresher := &countingRefresher{}
	runner := NewRunner(refresher, nil, zerolog.Nop(), time.Minute)
	console := NewConsole(bridge, runner, window, nil, zerolog.Nop())
	return console, refresher, runner
}

func TestSetIncludedSendsInverseHiddenPatch(t *testing.T) {
	capture := &patchCapture{}
	bridge := &stubBridge{patchEntity: capture.hook}
	console, refresher, _ := newTestConsole(bridge, time.Hour)
	defer console.Close()

	require.NoError(t, console.SetIncluded(context.Background(), "light.desk", true))

	patches := capture.all()
	require.Len(t, patches, 1)
	require.Equal(t, "light.desk", patches[0].EntityID)
	require.NotNil(t, patches[0].Hidden)
	require.False(t, *patches[0].Hidden, "included means not hidden")
	require.Nil(t, patches[0].RoomID)
	require.Nil(t, patches[0].Alias)
	require.Equal(t, int64(1), refresher.count.Load())

	require.NoError(t, console.SetIncluded(context.Background(), "light.desk", false))
	patches = capture.all()
	require.True(t, *patches[1].Hidden)
}

func TestAssignRoomAndSensorPatches(t *testing.T) {
	capture := &patchCapture{}
	bridge := &stubBridge{patchEntity: capture.hook}
	console, _, _ := newTestConsole(bridge, time.Hour)
	defer console.Close()

	ctx := context.Background()
	require.NoError(t, console.AssignRoom(ctx, "light.desk", "office"))
	require.NoError(t, console.SetSensorKind(ctx, "binary_sensor.door", remote.SensorKindContact))
	require.NoError(t, console.SetEnabled(ctx, "binary_sensor.door", false))

	patches := capture.all()
	require.Len(t, patches, 3)
	require.Equal(t, "office", *patches[0].RoomID)
	require.Equal(t, remote.SensorKindContact, *patches[1].SensorKind)
	require.False(t, *patches[2].Enabled)
}

func TestRenameCoalescesKeystrokes(t *testing.T) {
	capture := &patchCapture{}
	bridge := &stubBridge{patchEntity: capture.hook}
	console, refresher, _ := newTestConsole(bridge, 30*time.Millisecond)
	defer console.Close()

	ctx := context.Background()
	console.Rename(ctx, "light.desk", "K")
	console.Rename(ctx, "light.desk", "Ki")
	console.Rename(ctx, "light.desk", "Kit")

	alias, pending := console.PendingAlias("light.desk")
	require.True(t, pending)
	require.Equal(t, "Kit", alias)

	require.Eventually(t, func() bool {
		return len(capture.all()) == 1
	}, time.Second, 5*time.Millisecond)

	patches := capture.all()
	require.Equal(t, "Kit", *patches[0].Alias)
	require.Equal(t, "light.desk", patches[0].EntityID)
	require.Equal(t, int64(1), refresher.count.Load(), "the commit resyncs like any action")

	_, pending = console.PendingAlias("light.desk")
	require.False(t, pending)
}

func TestRenameRequeuesWhileCommitInFlight(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	capture := &patchCapture{}
	var once sync.Once
	bridge := &stubBridge{patchEntity: func(ctx context.Context, patch remote.EntityPatch) (*remote.UIConfig, error) {
		first := false
		once.Do(func() { first = true })
		if first {
			close(entered)
			<-release
		}
		return capture.hook(ctx, patch)
	}}
	console, _, runner := newTestConsole(bridge, 20*time.Millisecond)
	defer console.Close()

	ctx := context.Background()
	console.Rename(ctx, "light.desk", "Work")
	<-entered // the first commit is stuck inside the bridge call

	// A second alias settles while the first write is still in flight. The
	// coalescer fires against the busy rename; the value must stay pending
	// instead of vanishing.
	console.Rename(ctx, "light.desk", "Workbench")
	time.Sleep(80 * time.Millisecond)
	require.Eventually(t, func() bool {
		alias, pending := console.PendingAlias("light.desk")
		return pending && alias == "Workbench"
	}, time.Second, 5*time.Millisecond, "the newest alias must survive the in-flight commit")

	close(release)

	require.Eventually(t, func() bool {
		return len(capture.all()) == 2
	}, time.Second, 5*time.Millisecond)
	patches := capture.all()
	require.Equal(t, "Work", *patches[0].Alias)
	require.Equal(t, "Workbench", *patches[1].Alias)

	require.Eventually(t, func() bool {
		_, pending := console.PendingAlias("light.desk")
		return !pending
	}, time.Second, 5*time.Millisecond)
	for _, notice := range runner.Notices() {
		require.Equal(t, NoticeSuccess, notice.Kind, "a requeue is not a failure")
	}
}

func TestFlushRenameCommitsImmediately(t *testing.T) {
	capture := &patchCapture{}
	bridge := &stubBridge{patchEntity: capture.hook}
	console, _, _ := newTestConsole(bridge, time.Hour)
	defer console.Close()

	ctx := context.Background()
	console.Rename(ctx, "light.desk", "Workbench")
	console.FlushRename(ctx, "light.desk")

	patches := capture.all()
	require.Len(t, patches, 1)
	require.Equal(t, "Workbench", *patches[0].Alias)
}

func TestDeleteDefaultRoomRefusedLocally(t *testing.T) {
	bridge := &stubBridge{}
	console, refresher, runner := newTestConsole(bridge, time.Hour)
	defer console.Close()

	err := console.DeleteRoom(context.Background(), remote.DefaultRoomID)
	require.ErrorIs(t, err, ErrDefaultRoom)
	require.Empty(t, bridge.callLog(), "no request may reach the bridge")
	require.Zero(t, refresher.count.Load(), "no refresh for a local refusal")
	require.Empty(t, runner.Notices(), "no notice for a local refusal")

	require.NoError(t, console.DeleteRoom(context.Background(), "office"))
	require.Equal(t, []string{"delete-room"}, bridge.callLog())
}

func TestRoomOperationsValidateNames(t *testing.T) {
	bridge := &stubBridge{}
	console, _, _ := newTestConsole(bridge, time.Hour)
	defer console.Close()

	ctx := context.Background()
	require.Error(t, console.CreateRoom(ctx, "  "))
	require.Error(t, console.RenameRoom(ctx, "office", ""))
	require.Empty(t, bridge.callLog())

	require.NoError(t, console.CreateRoom(ctx, "Workshop"))
	require.NoError(t, console.RenameRoom(ctx, "office", "Studio"))
}

func TestSetTokenRequiresValue(t *testing.T) {
	bridge := &stubBridge{}
	console, _, _ := newTestConsole(bridge, time.Hour)
	defer console.Close()

	require.Error(t, console.SetToken(context.Background(), ""))
	require.Empty(t, bridge.callLog())

	require.NoError(t, console.SetToken(context.Background(), "abc123"))
	require.NoError(t, console.ClearToken(context.Background()))
}

func TestBridgeLifecycleActions(t *testing.T) {
	bridge := &stubBridge{}
	console, refresher, _ := newTestConsole(bridge, time.Hour)
	defer console.Close()

	ctx := context.Background()
	require.NoError(t, console.Connect(ctx))
	require.NoError(t, console.Disconnect(ctx))
	require.NoError(t, console.TriggerSync(ctx))
	require.NoError(t, console.ApplySelection(ctx))
	require.NoError(t, console.PressLinkButton(ctx))
	require.NoError(t, console.ResetBridge(ctx))
	require.Equal(t, []string{"connect", "disconnect", "sync", "apply", "linkbutton", "reset-bridge"}, bridge.callLog())
	require.Equal(t, int64(6), refresher.count.Load())
}

func TestLogsPassThrough(t *testing.T) {
	bridge := &stubBridge{logs: func(ctx context.Context) ([]string, error) {
		return []string{"backend connected", "sync complete"}, nil
	}}
	console, _, _ := newTestConsole(bridge, time.Hour)
	defer console.Close()

	lines, err := console.Logs(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"backend connected", "sync complete"}, lines)
	require.Equal(t, []string{"logs"}, bridge.callLog())
}

func TestRecordUsageRunsInBackground(t *testing.T) {
	seen := make(chan remote.PatinaEvent, 1)
	bridge := &stubBridge{
		recordUsage: func(_ context.Context, event remote.PatinaEvent) {
			seen <- event
		},
	}
	console, _, _ := newTestConsole(bridge, time.Hour)
	defer console.Close()

	console.RecordUsage("toggle", "light.desk")
	select {
	case event := <-seen:
		require.Equal(t, "toggle", event.Kind)
		require.Equal(t, "light.desk", event.Key)
	case <-time.After(time.Second):
		t.Fatal("usage event never reached the bridge")
	}
}
