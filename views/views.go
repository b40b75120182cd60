package views

import (
	"fmt"
	"sort"
	"strings"

	"github.com/expr-lang/expr"

	"github.com/pmoellner/hausdeck/remote"
)

// Predicate decides whether an entity belongs to a derived view.
type Predicate func(remote.EntitySummary) bool

// Options select and narrow a derived view. A nil Predicate admits every
// entity; an empty Query matches everything.
type Options struct {
	Predicate Predicate
	Query     string
}

// Apply produces a deterministic ordered view over the entity collection.
//
// The input is never mutated and the result is a fresh slice, so Apply can
// run on every keystroke and every snapshot refresh. Ordering: included
// entities before excluded ones, then room display name, then entity
// display name, both case-insensitive, with the entity id as final
// tie-break.
func Apply(entities []remote.EntitySummary, opts Options) []remote.EntitySummary {
	query := strings.ToLower(strings.TrimSpace(opts.Query))

	out := make([]remote.EntitySummary, 0, len(entities))
	for _, ent := range entities {
		if opts.Predicate != nil && !opts.Predicate(ent) {
			continue
		}
		if query != "" && !matchesQuery(ent, query) {
			continue
		}
		out = append(out, ent)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return Less(out[i], out[j])
	})
	return out
}

// Less is the view ordering relation.
func Less(a, b remote.EntitySummary) bool {
	if a.Included != b.Included {
		return a.Included
	}
	aRoom := strings.ToLower(a.RoomName)
	bRoom := strings.ToLower(b.RoomName)
	if aRoom != bRoom {
		return aRoom < bRoom
	}
	aName := strings.ToLower(a.Name)
	bName := strings.ToLower(b.Name)
	if aName != bName {
		return aName < bName
	}
	return a.EntityID < b.EntityID
}

func matchesQuery(ent remote.EntitySummary, query string) bool {
	haystack := strings.ToLower(strings.Join([]string{
		ent.Name,
		ent.EntityID,
		ent.RoomName,
		ent.AreaName,
		ent.MappedType,
	}, " "))
	return strings.Contains(haystack, query)
}

// RoomGroup is one room bucket of a grouped view.
type RoomGroup struct {
	RoomID   string
	RoomName string
	Entities []remote.EntitySummary
}

// GroupByRoom splits an already ordered view into per-room buckets. Groups
// appear in order of first occurrence; within a group the view order is
// preserved.
func GroupByRoom(entities []remote.EntitySummary) []RoomGroup {
	var groups []RoomGroup
	index := make(map[string]int)
	for _, ent := range entities {
		pos, ok := index[ent.RoomID]
		if !ok {
			pos = len(groups)
			index[ent.RoomID] = pos
			groups = append(groups, RoomGroup{RoomID: ent.RoomID, RoomName: ent.RoomName})
		}
		groups[pos].Entities = append(groups[pos].Entities, ent)
	}
	return groups
}

// Named preset predicates available without configuration.
var presets = map[string]Predicate{
	"all":         func(remote.EntitySummary) bool { return true },
	"lights":      func(e remote.EntitySummary) bool { return e.Domain == "light" || e.MappedType == "light" },
	"switches":    func(e remote.EntitySummary) bool { return e.Domain == "switch" },
	"sensors":     func(e remote.EntitySummary) bool { return e.Domain == "binary_sensor" },
	"included":    func(e remote.EntitySummary) bool { return e.Included },
	"hidden":      func(e remote.EntitySummary) bool { return e.Hidden },
	"unavailable": func(e remote.EntitySummary) bool { return !e.Available },
}

// Preset returns a built-in predicate by id.
func Preset(id string) (Predicate, bool) {
	p, ok := presets[id]
	return p, ok
}

// filterEnv is the expression environment exposed to user-defined filters.
type filterEnv struct {
	EntityID   string `expr:"entity_id"`
	Domain     string `expr:"domain"`
	Name       string `expr:"name"`
	State      string `expr:"state"`
	Available  bool   `expr:"available"`
	Included   bool   `expr:"included"`
	Hidden     bool   `expr:"hidden"`
	AreaName   string `expr:"area_name"`
	RoomID     string `expr:"room_id"`
	RoomName   string `expr:"room_name"`
	MappedType string `expr:"mapped_type"`
	SensorKind string `expr:"sensor_kind"`
	Enabled    bool   `expr:"enabled"`
}

func newFilterEnv(ent remote.EntitySummary) filterEnv {
	env := filterEnv{
		EntityID:   ent.EntityID,
		Domain:     ent.Domain,
		Name:       ent.Name,
		State:      ent.State,
		Available:  ent.Available,
		Included:   ent.Included,
		Hidden:     ent.Hidden,
		AreaName:   ent.AreaName,
		RoomID:     ent.RoomID,
		RoomName:   ent.RoomName,
		MappedType: ent.MappedType,
		Enabled:    ent.Enabled,
	}
	if ent.SensorKind != nil {
		env.SensorKind = string(*ent.SensorKind)
	}
	return env
}

// CompilePredicate builds a predicate from an expr filter expression, e.g.
// `domain == "light" && !hidden`.
func CompilePredicate(src string) (Predicate, error) {
	if strings.TrimSpace(src) == "" {
		return nil, fmt.Errorf("filter expression must not be empty")
	}
	program, err := expr.Compile(src, expr.Env(filterEnv{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile filter %q: %w", src, err)
	}
	return func(ent remote.EntitySummary) bool {
		result, err := expr.Run(program, newFilterEnv(ent))
		if err != nil {
			return false
		}
		matched, ok := result.(bool)
		return ok && matched
	}, nil
}
