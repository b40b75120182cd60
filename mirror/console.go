package mirror

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/pmoellner/hausdeck/remote"
	"github.com/pmoellner/hausdeck/telemetry"
)

// ErrDefaultRoom rejects destructive operations on the reserved fallback
// room before any request reaches the bridge.
var ErrDefaultRoom = errors.New("the default room cannot be deleted")

const aliasKeyPrefix = "alias/"

// Console exposes the bridge's mutations as typed operations. Toggles and
// buttons go through the action runner; the free-text alias field goes
// through the coalescer so keystrokes batch into a single write.
type Console struct {
	bridge    remote.Bridge
	runner    *Runner
	aliases   *Coalescer
	collector telemetry.Collector
	logger    zerolog.Logger
}

// NewConsole wires a console over the given bridge.
func NewConsole(bridge remote.Bridge, runner *Runner, window time.Duration, collector telemetry.Collector, logger zerolog.Logger) *Console {
	if collector == nil {
		collector = telemetry.Noop()
	}
	c := &Console{
		bridge:    bridge,
		runner:    runner,
		collector: collector,
		logger:    logger.With().Str("component", "console").Logger(),
	}
	c.aliases = NewCoalescer(window, c.commitAlias, logger)
	return c
}

// Close cancels pending coalesced edits. Call on shutdown.
func (c *Console) Close() {
	c.aliases.Close()
}

// SetIncluded toggles whether an entity is exposed on the Hue side. The
// bridge models inclusion as the inverse hidden flag.
func (c *Console) SetIncluded(ctx context.Context, entityID string, included bool) error {
	hidden := !included
	return c.runner.Run(ctx, "include:"+entityID, func(ctx context.Context) error {
		_, err := c.bridge.PatchEntity(ctx, remote.EntityPatch{EntityID: entityID, Hidden: &hidden})
		return err
	})
}

// AssignRoom moves an entity to a room.
func (c *Console) AssignRoom(ctx context.Context, entityID, roomID string) error {
	return c.runner.Run(ctx, "room:"+entityID, func(ctx context.Context) error {
		_, err := c.bridge.PatchEntity(ctx, remote.EntityPatch{EntityID: entityID, RoomID: &roomID})
		return err
	})
}

// SetSensorKind classifies a binary sensor.
func (c *Console) SetSensorKind(ctx context.Context, entityID string, kind remote.SensorKind) error {
	return c.runner.Run(ctx, "sensor-kind:"+entityID, func(ctx context.Context) error {
		_, err := c.bridge.PatchEntity(ctx, remote.EntityPatch{EntityID: entityID, SensorKind: &kind})
		return err
	})
}

// SetEnabled enables or disables an entity's sensor emission.
func (c *Console) SetEnabled(ctx context.Context, entityID string, enabled bool) error {
	return c.runner.Run(ctx, "enable:"+entityID, func(ctx context.Context) error {
		_, err := c.bridge.PatchEntity(ctx, remote.EntityPatch{EntityID: entityID, Enabled: &enabled})
		return err
	})
}

// Rename schedules an alias edit. Keystrokes for the same entity coalesce;
// the write happens once typing pauses.
func (c *Console) Rename(ctx context.Context, entityID, alias string) {
	c.aliases.Schedule(ctx, aliasKeyPrefix+entityID, alias)
}

// PendingAlias returns the in-flight alias edit for an entity, so the
// display can echo it instead of the stale snapshot value.
func (c *Console) PendingAlias(entityID string) (string, bool) {
	return c.aliases.Pending(aliasKeyPrefix + entityID)
}

// FlushRename commits a pending alias edit immediately, e.g. on field blur.
func (c *Console) FlushRename(ctx context.Context, entityID string) {
	c.aliases.Flush(ctx, aliasKeyPrefix+entityID)
}

func (c *Console) commitAlias(ctx context.Context, key, value string) {
	entityID := strings.TrimPrefix(key, aliasKeyPrefix)
	alias := value
	err := c.runner.Run(ctx, "rename:"+entityID, func(ctx context.Context) error {
		_, err := c.bridge.PatchEntity(ctx, remote.EntityPatch{EntityID: entityID, Alias: &alias})
		return err
	})
	if errors.Is(err, ErrActionBusy) {
		// The previous rename for this entity is still in flight. Park the
		// value back in the coalescer so it commits once that write settles;
		// dropping it here would lose the user's newest keystrokes.
		c.logger.Debug().Str("entity", entityID).Msg("rename in flight, requeueing alias")
		c.aliases.Schedule(ctx, key, value)
		return
	}
	c.collector.IncCoalescedCommit("alias")
}

// CreateRoom adds a room.
func (c *Console) CreateRoom(ctx context.Context, name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("room name must not be empty")
	}
	return c.runner.Run(ctx, "room-create", func(ctx context.Context) error {
		_, err := c.bridge.CreateRoom(ctx, name)
		return err
	})
}

// RenameRoom changes a room's display name.
func (c *Console) RenameRoom(ctx context.Context, roomID, name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("room name must not be empty")
	}
	return c.runner.Run(ctx, "room-rename:"+roomID, func(ctx context.Context) error {
		_, err := c.bridge.RenameRoom(ctx, roomID, name)
		return err
	})
}

// DeleteRoom removes a room; its entities fall back to the default room on
// the bridge. Deleting the default room is refused locally, without a
// request, a notice or a refresh.
func (c *Console) DeleteRoom(ctx context.Context, roomID string) error {
	if roomID == remote.DefaultRoomID {
		return ErrDefaultRoom
	}
	return c.runner.Run(ctx, "room-delete:"+roomID, func(ctx context.Context) error {
		_, err := c.bridge.DeleteRoom(ctx, roomID)
		return err
	})
}

// Connect asks the bridge to establish its backend connection.
func (c *Console) Connect(ctx context.Context) error {
	return c.runner.Run(ctx, "connect", func(ctx context.Context) error {
		_, err := c.bridge.Connect(ctx)
		return err
	})
}

// Disconnect drops the bridge's backend connection.
func (c *Console) Disconnect(ctx context.Context) error {
	return c.runner.Run(ctx, "disconnect", func(ctx context.Context) error {
		_, err := c.bridge.Disconnect(ctx)
		return err
	})
}

// SetToken stores a backend token on the bridge. The token is write-only
// and never logged.
func (c *Console) SetToken(ctx context.Context, token string) error {
	if token == "" {
		return fmt.Errorf("token must not be empty")
	}
	return c.runner.Run(ctx, "token-set", func(ctx context.Context) error {
		_, err := c.bridge.SetToken(ctx, token)
		return err
	})
}

// ClearToken removes the stored backend token.
func (c *Console) ClearToken(ctx context.Context) error {
	return c.runner.Run(ctx, "token-clear", func(ctx context.Context) error {
		_, err := c.bridge.DeleteToken(ctx)
		return err
	})
}

// SaveRuntimeConfig replaces the bridge's backend connection settings.
func (c *Console) SaveRuntimeConfig(ctx context.Context, update remote.RuntimeConfigUpdate) error {
	return c.runner.Run(ctx, "runtime-config", func(ctx context.Context) error {
		_, err := c.bridge.SaveRuntimeConfig(ctx, update)
		return err
	})
}

// SaveConfig replaces the whole UI configuration document.
func (c *Console) SaveConfig(ctx context.Context, cfg remote.UIConfig) error {
	return c.runner.Run(ctx, "ui-config", func(ctx context.Context) error {
		_, err := c.bridge.SaveConfig(ctx, cfg)
		return err
	})
}

// TriggerSync queues a backend sync.
func (c *Console) TriggerSync(ctx context.Context) error {
	return c.runner.Run(ctx, "sync", func(ctx context.Context) error {
		_, err := c.bridge.TriggerSync(ctx)
		return err
	})
}

// ApplySelection pushes the inclusion selection to the Hue side.
func (c *Console) ApplySelection(ctx context.Context) error {
	return c.runner.Run(ctx, "apply", func(ctx context.Context) error {
		_, err := c.bridge.ApplySelection(ctx)
		return err
	})
}

// PressLinkButton presses the virtual pairing button.
func (c *Console) PressLinkButton(ctx context.Context) error {
	return c.runner.Run(ctx, "linkbutton", func(ctx context.Context) error {
		_, err := c.bridge.PressLinkButton(ctx)
		return err
	})
}

// ResetBridge factory-resets the bridge's Hue resources.
func (c *Console) ResetBridge(ctx context.Context) error {
	return c.runner.Run(ctx, "reset-bridge", func(ctx context.Context) error {
		_, err := c.bridge.ResetBridge(ctx)
		return err
	})
}

// Logs fetches the bridge's current log lines, fresher than the copy riding
// along in the poll snapshot.
func (c *Console) Logs(ctx context.Context) ([]string, error) {
	return c.bridge.Logs(ctx)
}

// RecordUsage reports an interaction to the wear counter in the background.
// Best effort; never blocks the caller.
func (c *Console) RecordUsage(kind, key string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		c.bridge.RecordUsage(ctx, remote.PatinaEvent{Kind: kind, Key: key})
	}()
}
