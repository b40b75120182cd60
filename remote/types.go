package remote

// Wire types for the bridge admin API. Field names follow the JSON the
// bridge emits; optional fields are pointers so that absent and zero can be
// told apart when patching.

// SensorKind classifies a binary sensor on the bridge.
type SensorKind string

const (
	SensorKindMotion  SensorKind = "motion"
	SensorKindContact SensorKind = "contact"
	SensorKindIgnore  SensorKind = "ignore"
)

// DefaultRoomID is the reserved fallback room. The bridge refuses to delete
// it, and so does the console before a request is even made.
const DefaultRoomID = "home-assistant"

// RoomConfig is a room as stored in the bridge UI configuration.
type RoomConfig struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	SourceArea  string `json:"source_area,omitempty"`
	AutoCreated bool   `json:"auto_created,omitempty"`
}

// EntityPreference holds the per-entity overrides kept by the bridge.
type EntityPreference struct {
	Visible       *bool       `json:"visible,omitempty"`
	RoomID        *string     `json:"room_id,omitempty"`
	Alias         *string     `json:"alias,omitempty"`
	SensorKind    *SensorKind `json:"sensor_kind,omitempty"`
	SensorEnabled *bool       `json:"sensor_enabled,omitempty"`
}

// UIConfig is the whole-config document replaced via PUT.
type UIConfig struct {
	HiddenEntityIDs           []string                    `json:"hidden_entity_ids"`
	ExcludeEntityIDs          []string                    `json:"exclude_entity_ids"`
	ExcludeNamePatterns       []string                    `json:"exclude_name_patterns"`
	IncludeUnavailable        bool                        `json:"include_unavailable"`
	Rooms                     []RoomConfig                `json:"rooms"`
	EntityPreferences         map[string]EntityPreference `json:"entity_preferences"`
	IgnoredAreaNames          []string                    `json:"ignored_area_names"`
	DefaultAddNewDevicesToHue bool                        `json:"default_add_new_devices_to_hue"`
	SyncHassAreasToRooms      bool                        `json:"sync_hass_areas_to_rooms"`
}

// EntitySummary is one row of the bridge's entity table.
type EntitySummary struct {
	EntityID           string      `json:"entity_id"`
	Domain             string      `json:"domain"`
	Name               string      `json:"name"`
	State              string      `json:"state"`
	Available          bool        `json:"available"`
	Included           bool        `json:"included"`
	Hidden             bool        `json:"hidden"`
	AreaName           string      `json:"area_name,omitempty"`
	RoomID             string      `json:"room_id"`
	RoomName           string      `json:"room_name"`
	MappedType         string      `json:"mapped_type"`
	SupportsBrightness bool        `json:"supports_brightness"`
	SupportsColor      bool        `json:"supports_color"`
	SupportsColorTemp  bool        `json:"supports_color_temp"`
	SensorKind         *SensorKind `json:"sensor_kind,omitempty"`
	Enabled            bool        `json:"enabled"`
}

// SyncStatus mirrors the bridge's last-sync record. Read-only on this side.
type SyncStatus struct {
	LastSyncAt         *string `json:"last_sync_at,omitempty"`
	LastSyncResult     *string `json:"last_sync_result,omitempty"`
	SyncInProgress     bool    `json:"sync_in_progress"`
	LastSyncDurationMS *uint64 `json:"last_sync_duration_ms,omitempty"`
}

// PatinaStage buckets the cosmetic wear overlay.
type PatinaStage string

const (
	PatinaFresh PatinaStage = "fresh"
	PatinaUsed  PatinaStage = "used"
	PatinaLoved PatinaStage = "loved"
)

// Patina is the bridge's usage/wear record. Purely informational.
type Patina struct {
	InstallDate      string      `json:"install_date"`
	InteractionCount uint64      `json:"interaction_count"`
	PatinaLevel      uint8       `json:"patina_level"`
	Stage            PatinaStage `json:"stage"`
}

// UIPayload is the combined snapshot document served by the bridge.
type UIPayload struct {
	Config   UIConfig        `json:"config"`
	Entities []EntitySummary `json:"entities"`
	Logs     []string        `json:"logs"`
	Sync     SyncStatus      `json:"sync"`
	Patina   Patina          `json:"patina"`
}

// BridgeInfo is the diagnostics record.
type BridgeInfo struct {
	BridgeName                string     `json:"bridge_name"`
	BridgeID                  string     `json:"bridge_id"`
	SoftwareVersion           string     `json:"software_version"`
	MAC                       string     `json:"mac"`
	IPAddress                 string     `json:"ipaddress"`
	Netmask                   string     `json:"netmask"`
	Gateway                   string     `json:"gateway"`
	Timezone                  string     `json:"timezone"`
	TotalEntities             int        `json:"total_entities"`
	IncludedEntities          int        `json:"included_entities"`
	HiddenEntities            int        `json:"hidden_entities"`
	RoomCount                 int        `json:"room_count"`
	LinkButtonActive          bool       `json:"linkbutton_active"`
	DefaultAddNewDevicesToHue bool       `json:"default_add_new_devices_to_hue"`
	SyncHassAreasToRooms      bool       `json:"sync_hass_areas_to_rooms"`
	SyncStatus                SyncStatus `json:"sync_status"`
}

// RuntimeConfig is the public view of the bridge's backend connection.
// The token itself is write-only and never appears here.
type RuntimeConfig struct {
	Enabled      bool   `json:"enabled"`
	URL          string `json:"url"`
	SyncMode     string `json:"sync_mode"`
	TokenPresent bool   `json:"token_present"`
}

// RuntimeConfigUpdate is the PUT body for the runtime config.
type RuntimeConfigUpdate struct {
	Enabled  bool    `json:"enabled"`
	URL      string  `json:"url"`
	SyncMode *string `json:"sync_mode,omitempty"`
}

// EntityPatch is a partial update for one entity. Only non-nil fields are
// sent; the bridge applies them field by field.
type EntityPatch struct {
	EntityID   string      `json:"entity_id"`
	Hidden     *bool       `json:"hidden,omitempty"`
	RoomID     *string     `json:"room_id,omitempty"`
	Alias      *string     `json:"alias,omitempty"`
	SensorKind *SensorKind `json:"sensor_kind,omitempty"`
	Enabled    *bool       `json:"enabled,omitempty"`
}

// PatinaEvent reports one user interaction. Best effort only.
type PatinaEvent struct {
	Kind string `json:"kind"`
	Key  string `json:"key,omitempty"`
}

type roomCreateRequest struct {
	Name string `json:"name"`
}

type roomRenameRequest struct {
	RoomID string `json:"room_id"`
	Name   string `json:"name"`
}

type roomDeleteRequest struct {
	RoomID string `json:"room_id"`
}

type tokenRequest struct {
	Token string `json:"token"`
}

type roomsResponse struct {
	Rooms []RoomConfig `json:"rooms"`
}

type logsResponse struct {
	Logs []string `json:"logs"`
}

// ConnectResponse acknowledges a connect or disconnect request.
type ConnectResponse struct {
	Connected bool          `json:"connected"`
	Runtime   RuntimeConfig `json:"runtime"`
}

// SyncResponse acknowledges a queued bridge sync.
type SyncResponse struct {
	Queued bool       `json:"queued"`
	Sync   SyncStatus `json:"sync"`
}

// ApplyResponse acknowledges a selection apply.
type ApplyResponse struct {
	Applied        bool `json:"applied"`
	RemovedDevices int  `json:"removed_devices"`
}

// LinkButtonResponse acknowledges a virtual link button press.
type LinkButtonResponse struct {
	Active           bool   `json:"active"`
	ActiveForSeconds uint64 `json:"active_for_seconds"`
}

// ResetResponse acknowledges a bridge factory reset.
type ResetResponse struct {
	Reset bool `json:"reset"`
}
