package mirror

import (
	"context"
	"sync"

	"github.com/pmoellner/hausdeck/remote"
)

// stubBridge satisfies remote.Bridge with per-method hooks. Unset hooks
// return empty values, so each test only wires what it exercises.
type stubBridge struct {
	mu    sync.Mutex
	calls []string

	uiPayload     func(ctx context.Context) (*remote.UIPayload, error)
	bridgeInfo    func(ctx context.Context) (*remote.BridgeInfo, error)
	runtimeConfig func(ctx context.Context) (*remote.RuntimeConfig, error)
	patchEntity   func(ctx context.Context, patch remote.EntityPatch) (*remote.UIConfig, error)
	createRoom    func(ctx context.Context, name string) ([]remote.RoomConfig, error)
	renameRoom    func(ctx context.Context, roomID, name string) ([]remote.RoomConfig, error)
	deleteRoom    func(ctx context.Context, roomID string) ([]remote.RoomConfig, error)
	saveRuntime   func(ctx context.Context, update remote.RuntimeConfigUpdate) (*remote.RuntimeConfig, error)
	saveConfig    func(ctx context.Context, cfg remote.UIConfig) (*remote.UIConfig, error)
	triggerSync   func(ctx context.Context) (*remote.SyncResponse, error)
	logs          func(ctx context.Context) ([]string, error)
	recordUsage   func(ctx context.Context, event remote.PatinaEvent)
}

var _ remote.Bridge = (*stubBridge)(nil)

func (b *stubBridge) record(call string) {
	b.mu.Lock()
	b.calls = append(b.calls, call)
	b.mu.Unlock()
}

func (b *stubBridge) callLog() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.calls...)
}

func (b *stubBridge) UIPayload(ctx context.Context) (*remote.UIPayload, error) {
	b.record("ui-payload")
	if b.uiPayload != nil {
		return b.uiPayload(ctx)
	}
	return &remote.UIPayload{}, nil
}

func (b *stubBridge) BridgeInfo(ctx context.Context) (*remote.BridgeInfo, error) {
	b.record("bridge-info")
	if b.bridgeInfo != nil {
		return b.bridgeInfo(ctx)
	}
	return &remote.BridgeInfo{}, nil
}

func (b *stubBridge) RuntimeConfig(ctx context.Context) (*remote.RuntimeConfig, error) {
	b.record("runtime-config")
	if b.runtimeConfig != nil {
		return b.runtimeConfig(ctx)
	}
	return &remote.RuntimeConfig{}, nil
}

func (b *stubBridge) SaveRuntimeConfig(ctx context.Context, update remote.RuntimeConfigUpdate) (*remote.RuntimeConfig, error) {
	b.record("save-runtime-config")
	if b.saveRuntime != nil {
		return b.saveRuntime(ctx, update)
	}
	return &remote.RuntimeConfig{}, nil
}

func (b *stubBridge) Connect(ctx context.Context) (*remote.ConnectResponse, error) {
	b.record("connect")
	return &remote.ConnectResponse{Connected: true}, nil
}

func (b *stubBridge) Disconnect(ctx context.Context) (*remote.ConnectResponse, error) {
	b.record("disconnect")
	return &remote.ConnectResponse{}, nil
}

func (b *stubBridge) SetToken(ctx context.Context, token string) (*remote.RuntimeConfig, error) {
	b.record("set-token")
	return &remote.RuntimeConfig{TokenPresent: true}, nil
}

func (b *stubBridge) DeleteToken(ctx context.Context) (*remote.RuntimeConfig, error) {
	b.record("delete-token")
	return &remote.RuntimeConfig{}, nil
}

func (b *stubBridge) SaveConfig(ctx context.Context, cfg remote.UIConfig) (*remote.UIConfig, error) {
	b.record("save-config")
	if b.saveConfig != nil {
		return b.saveConfig(ctx, cfg)
	}
	return &cfg, nil
}

func (b *stubBridge) PatchEntity(ctx context.Context, patch remote.EntityPatch) (*remote.UIConfig, error) {
	b.record("patch-entity")
	if b.patchEntity != nil {
		return b.patchEntity(ctx, patch)
	}
	return &remote.UIConfig{}, nil
}

func (b *stubBridge) Rooms(ctx context.Context) ([]remote.RoomConfig, error) {
	b.record("rooms")
	return nil, nil
}

func (b *stubBridge) CreateRoom(ctx context.Context, name string) ([]remote.RoomConfig, error) {
	b.record("create-room")
	if b.createRoom != nil {
		return b.createRoom(ctx, name)
	}
	return nil, nil
}

func (b *stubBridge) RenameRoom(ctx context.Context, roomID, name string) ([]remote.RoomConfig, error) {
	b.record("rename-room")
	if b.renameRoom != nil {
		return b.renameRoom(ctx, roomID, name)
	}
	return nil, nil
}

func (b *stubBridge) DeleteRoom(ctx context.Context, roomID string) ([]remote.RoomConfig, error) {
	b.record("delete-room")
	if b.deleteRoom != nil {
		return b.deleteRoom(ctx, roomID)
	}
	return nil, nil
}

func (b *stubBridge) Logs(ctx context.Context) ([]string, error) {
	b.record("logs")
	if b.logs != nil {
		return b.logs(ctx)
	}
	return nil, nil
}

func (b *stubBridge) TriggerSync(ctx context.Context) (*remote.SyncResponse, error) {
	b.record("sync")
	if b.triggerSync != nil {
		return b.triggerSync(ctx)
	}
	return &remote.SyncResponse{Queued: true}, nil
}

func (b *stubBridge) ApplySelection(ctx context.Context) (*remote.ApplyResponse, error) {
	b.record("apply")
	return &remote.ApplyResponse{Applied: true}, nil
}

func (b *stubBridge) PressLinkButton(ctx context.Context) (*remote.LinkButtonResponse, error) {
	b.record("linkbutton")
	return &remote.LinkButtonResponse{Active: true, ActiveForSeconds: 30}, nil
}

func (b *stubBridge) ResetBridge(ctx context.Context) (*remote.ResetResponse, error) {
	b.record("reset-bridge")
	return &remote.ResetResponse{Reset: true}, nil
}

func (b *stubBridge) RecordUsage(ctx context.Context, event remote.PatinaEvent) {
	b.record("patina-event")
	if b.recordUsage != nil {
		b.recordUsage(ctx, event)
	}
}
