// Package dashboard serves the operator console over HTTP: a single page,
// a state endpoint and a windowed view endpoint for the entity list.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pmoellner/hausdeck/config"
	"github.com/pmoellner/hausdeck/mirror"
	"github.com/pmoellner/hausdeck/remote"
	"github.com/pmoellner/hausdeck/viewport"
	"github.com/pmoellner/hausdeck/views"
)

const (
	rowEstimate   = 44
	rowOverscan   = 4
	defaultHeight = 600
)

// Server is the dashboard HTTP server. Every request counts as viewer
// activity, which keeps the synchronizer on its fast schedule.
type Server struct {
	logger   zerolog.Logger
	sync     *mirror.Synchronizer
	console  *mirror.Console
	runner   *mirror.Runner
	viewport *viewport.Viewport
	presets  map[string]views.Predicate
	server   *http.Server
	ln       net.Listener

	viewMu  sync.Mutex
	viewIDs []string
}

type stateResponse struct {
	Sync     mirror.SyncState `json:"sync"`
	Snapshot *snapshotSummary `json:"snapshot,omitempty"`
	Notices  []mirror.Notice  `json:"notices"`
	Busy     []string         `json:"busy"`
	Presets  []string         `json:"presets"`
}

type snapshotSummary struct {
	Version       uint64                `json:"version"`
	FetchedAt     time.Time             `json:"fetched_at"`
	TotalEntities int                   `json:"total_entities"`
	Included      int                   `json:"included"`
	Rooms         []remote.RoomConfig   `json:"rooms"`
	Logs          []string              `json:"logs"`
	SyncStatus    remote.SyncStatus     `json:"sync_status"`
	Patina        remote.Patina         `json:"patina"`
	Bridge        *remote.BridgeInfo    `json:"bridge,omitempty"`
	Runtime       *remote.RuntimeConfig `json:"runtime,omitempty"`
}

type viewResponse struct {
	Window viewport.Window `json:"window"`
	Rows   []viewRow       `json:"rows"`
	Total  int             `json:"total"`
	Stale  bool            `json:"stale"`
}

type viewRow struct {
	Index        int                  `json:"index"`
	Offset       float64              `json:"offset"`
	Size         float64              `json:"size"`
	Entity       remote.EntitySummary `json:"entity"`
	AliasPending bool                 `json:"alias_pending"`
	Busy         bool                 `json:"busy"`
}

type measureRequest struct {
	Index int     `json:"index"`
	Size  float64 `json:"size"`
}

type entityRequest struct {
	Included   *bool              `json:"included,omitempty"`
	RoomID     *string            `json:"room_id,omitempty"`
	Alias      *string            `json:"alias,omitempty"`
	AliasFlush bool               `json:"alias_flush,omitempty"`
	SensorKind *remote.SensorKind `json:"sensor_kind,omitempty"`
	Enabled    *bool              `json:"enabled,omitempty"`
}

type roomRequest struct {
	Name string `json:"name"`
}

type tokenUpdateRequest struct {
	Token string `json:"token"`
}

// New starts a dashboard server on the given listen address.
func New(cfg config.DashboardConfig, sync *mirror.Synchronizer, console *mirror.Console, runner *mirror.Runner, presets []config.FilterPresetConfig, logger zerolog.Logger) (*Server, error) {
	compiled := make(map[string]views.Predicate, len(presets))
	for _, preset := range presets {
		predicate, err := views.CompilePredicate(preset.Expression)
		if err != nil {
			return nil, fmt.Errorf("filter preset %q: %w", preset.ID, err)
		}
		compiled[preset.ID] = predicate
	}

	s := &Server{
		logger:   logger.With().Str("component", "dashboard").Logger(),
		sync:     sync,
		console:  console,
		runner:   runner,
		viewport: viewport.New(rowEstimate, defaultHeight, rowOverscan),
		presets:  compiled,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/api/state", s.handleState)
	mux.HandleFunc("/api/view", s.handleView)
	mux.HandleFunc("/api/measure", s.handleMeasure)
	mux.HandleFunc("/api/logs", s.handleLogs)
	mux.HandleFunc("/api/entities/", s.handleEntity)
	mux.HandleFunc("/api/rooms", s.handleRooms)
	mux.HandleFunc("/api/rooms/", s.handleRoom)
	mux.HandleFunc("/api/actions/", s.handleAction)
	mux.HandleFunc("/api/runtime-config", s.handleRuntimeConfig)
	mux.HandleFunc("/api/ui-config", s.handleUIConfig)
	mux.HandleFunc("/api/token", s.handleToken)

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.Listen, err)
	}
	s.ln = ln
	s.server = &http.Server{Handler: s.markActivity(mux)}

	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("dashboard server stopped")
		}
	}()

	s.logger.Info().Str("listen", ln.Addr().String()).Msg("dashboard started")
	return s, nil
}

// Addr returns the bound listen address.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Close shuts the server down.
func (s *Server) Close() {
	if s == nil || s.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil && err != context.Canceled {
		s.logger.Error().Err(err).Msg("shutdown dashboard")
	}
}

func (s *Server) markActivity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.sync.MarkViewerActive()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := dashboardTemplate.Execute(w, nil); err != nil {
		s.logger.Error().Err(err).Msg("render dashboard page")
	}
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	resp := stateResponse{
		Sync:    s.sync.State(),
		Notices: s.runner.Notices(),
		Busy:    s.runner.BusyLabels(),
		Presets: s.presetIDs(),
	}
	if snap := s.sync.Current(); snap != nil {
		resp.Snapshot = &snapshotSummary{
			Version:       snap.Version,
			FetchedAt:     snap.FetchedAt,
			TotalEntities: len(snap.Entities),
			Included:      snap.IncludedCount(),
			Rooms:         snap.Rooms(),
			Logs:          snap.Logs,
			SyncStatus:    snap.Sync,
			Patina:        snap.Patina,
			Bridge:        snap.Bridge,
			Runtime:       snap.Runtime,
		}
	}
	writeJSON(w, s.logger, resp)
}

func (s *Server) presetIDs() []string {
	ids := make([]string, 0, len(s.presets))
	for id := range s.presets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *Server) predicateFor(id string) (views.Predicate, error) {
	if id == "" {
		return nil, nil
	}
	if predicate, ok := s.presets[id]; ok {
		return predicate, nil
	}
	if predicate, ok := views.Preset(id); ok {
		return predicate, nil
	}
	return nil, fmt.Errorf("unknown filter %q", id)
}

// handleView computes the filtered, ordered view and returns only the rows
// inside the requested scroll window.
func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	snap := s.sync.Current()
	if snap == nil {
		writeJSON(w, s.logger, viewResponse{Stale: true, Rows: []viewRow{}})
		return
	}

	query := r.URL.Query()
	predicate, err := s.predicateFor(query.Get("filter"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ordered := views.Apply(snap.Entities, views.Options{
		Predicate: predicate,
		Query:     query.Get("q"),
	})

	s.syncViewport(ordered)
	if raw := query.Get("height"); raw != "" {
		if height, err := strconv.ParseFloat(raw, 64); err == nil {
			s.viewport.SetHeight(height)
		}
	}
	if raw := query.Get("offset"); raw != "" {
		if offset, err := strconv.ParseFloat(raw, 64); err == nil {
			s.viewport.SetOffset(offset)
		}
	}

	window := s.viewport.Window()
	rows := make([]viewRow, 0, len(window.Items))
	for _, item := range window.Items {
		ent := ordered[item.Index]
		row := viewRow{
			Index:  item.Index,
			Offset: item.Offset,
			Size:   item.Size,
			Entity: ent,
			Busy:   s.runner.Busy("include:" + ent.EntityID),
		}
		// Echo the edit still sitting in the coalescer instead of the
		// snapshot value, so typing never flickers backwards.
		if alias, pending := s.console.PendingAlias(ent.EntityID); pending {
			row.Entity.Name = alias
			row.AliasPending = true
		}
		rows = append(rows, row)
	}

	writeJSON(w, s.logger, viewResponse{
		Window: window,
		Rows:   rows,
		Total:  len(ordered),
		Stale:  s.sync.State().LastError != "",
	})
}

// syncViewport resizes the viewport for the current row sequence. When the
// sequence changes identity, not just length, the measurements are dropped:
// a height measured for one entity must not apply to whichever entity now
// occupies its index after a filter or query change.
func (s *Server) syncViewport(ordered []remote.EntitySummary) {
	ids := make([]string, len(ordered))
	for i, ent := range ordered {
		ids[i] = ent.EntityID
	}

	s.viewMu.Lock()
	same := len(ids) == len(s.viewIDs)
	if same {
		for i := range ids {
			if ids[i] != s.viewIDs[i] {
				same = false
				break
			}
		}
	}
	s.viewIDs = ids
	s.viewMu.Unlock()

	if same {
		s.viewport.SetCount(len(ids))
		return
	}
	s.viewport.Reset(len(ids))
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	lines, err := s.console.Logs(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	if lines == nil {
		lines = []string{}
	}
	writeJSON(w, s.logger, map[string][]string{"logs": lines})
}

func (s *Server) handleMeasure(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	defer r.Body.Close()
	var req measureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	s.viewport.Measure(req.Index, req.Size)
	writeJSON(w, s.logger, map[string]float64{"offset": s.viewport.Offset()})
}

func (s *Server) handleEntity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	entityID := strings.TrimPrefix(r.URL.Path, "/api/entities/")
	if entityID == "" || strings.Contains(entityID, "/") {
		http.NotFound(w, r)
		return
	}
	defer r.Body.Close()
	var req entityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	switch {
	case req.Included != nil:
		s.console.RecordUsage("toggle", entityID)
		s.respondAction(w, s.console.SetIncluded(ctx, entityID, *req.Included))
	case req.RoomID != nil:
		s.respondAction(w, s.console.AssignRoom(ctx, entityID, *req.RoomID))
	case req.SensorKind != nil:
		s.respondAction(w, s.console.SetSensorKind(ctx, entityID, *req.SensorKind))
	case req.Enabled != nil:
		s.respondAction(w, s.console.SetEnabled(ctx, entityID, *req.Enabled))
	case req.Alias != nil:
		// Alias edits detach from the request: they coalesce and commit on
		// their own schedule.
		s.console.Rename(context.Background(), entityID, *req.Alias)
		if req.AliasFlush {
			s.console.FlushRename(context.Background(), entityID)
		}
		writeJSON(w, s.logger, map[string]bool{"scheduled": true})
	case req.AliasFlush:
		s.console.FlushRename(context.Background(), entityID)
		writeJSON(w, s.logger, map[string]bool{"flushed": true})
	default:
		http.Error(w, "no field to update", http.StatusBadRequest)
	}
}

func (s *Server) handleRooms(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		snap := s.sync.Current()
		writeJSON(w, s.logger, map[string]interface{}{"rooms": snap.Rooms()})
	case http.MethodPost:
		defer r.Body.Close()
		var req roomRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
		s.respondAction(w, s.console.CreateRoom(r.Context(), req.Name))
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleRoom(w http.ResponseWriter, r *http.Request) {
	roomID := strings.TrimPrefix(r.URL.Path, "/api/rooms/")
	if roomID == "" || strings.Contains(roomID, "/") {
		http.NotFound(w, r)
		return
	}
	switch r.Method {
	case http.MethodPost:
		defer r.Body.Close()
		var req roomRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
		s.respondAction(w, s.console.RenameRoom(r.Context(), roomID, req.Name))
	case http.MethodDelete:
		s.respondAction(w, s.console.DeleteRoom(r.Context(), roomID))
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/api/actions/")
	ctx := r.Context()
	var err error
	switch name {
	case "connect":
		err = s.console.Connect(ctx)
	case "disconnect":
		err = s.console.Disconnect(ctx)
	case "sync":
		err = s.console.TriggerSync(ctx)
	case "apply":
		err = s.console.ApplySelection(ctx)
	case "linkbutton":
		err = s.console.PressLinkButton(ctx)
	case "reset-bridge":
		err = s.console.ResetBridge(ctx)
	default:
		http.Error(w, "unknown action", http.StatusBadRequest)
		return
	}
	s.console.RecordUsage("action", name)
	s.respondAction(w, err)
}

func (s *Server) handleRuntimeConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	defer r.Body.Close()
	var req remote.RuntimeConfigUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	s.respondAction(w, s.console.SaveRuntimeConfig(r.Context(), req))
}

func (s *Server) handleUIConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	defer r.Body.Close()
	var cfg remote.UIConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	s.respondAction(w, s.console.SaveConfig(r.Context(), cfg))
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPut:
		defer r.Body.Close()
		var req tokenUpdateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
		s.respondAction(w, s.console.SetToken(r.Context(), req.Token))
	case http.MethodDelete:
		s.respondAction(w, s.console.ClearToken(r.Context()))
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// respondAction maps operation outcomes to HTTP statuses. Busy means the
// control should stay disabled; the default-room guard is a conflict the
// client caused.
func (s *Server) respondAction(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		writeJSON(w, s.logger, map[string]bool{"ok": true})
	case errors.Is(err, mirror.ErrActionBusy):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, mirror.ErrDefaultRoom):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		http.Error(w, err.Error(), http.StatusBadGateway)
	}
}

func writeJSON(w http.ResponseWriter, logger zerolog.Logger, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error().Err(err).Msg("encode response")
	}
}
