package entity

import (
	"maps"
	"strings"
	"time"
)

// Entry is the registry record of one entity.
//
// Name and Icon are user overrides; OriginalName and OriginalIcon are what
// the integration providing the entity reported. Empty strings mean unset.
type Entry struct {
	EntityID          string    `json:"entity_id" yaml:"entity_id"`
	Platform          string    `json:"platform,omitempty" yaml:"platform"`
	Name              string    `json:"name,omitempty" yaml:"name"`
	OriginalName      string    `json:"original_name,omitempty" yaml:"original_name"`
	Icon              string    `json:"icon,omitempty" yaml:"icon"`
	OriginalIcon      string    `json:"original_icon,omitempty" yaml:"original_icon"`
	DeviceClass       string    `json:"device_class,omitempty" yaml:"device_class"`
	UnitOfMeasurement string    `json:"unit_of_measurement,omitempty" yaml:"unit_of_measurement"`
	AreaID            string    `json:"area_id,omitempty" yaml:"area_id"`
	DeviceID          string    `json:"device_id,omitempty" yaml:"device_id"`
	Disabled          bool      `json:"disabled" yaml:"disabled"`
	CreatedAt         time.Time `json:"created_at" yaml:"-"`
	UpdatedAt         time.Time `json:"updated_at" yaml:"-"`
}

// Domain returns the part of the entity ID before the first dot.
func (e *Entry) Domain() string {
	return Domain(e.EntityID)
}

// DisplayName returns the name shown to users: the override, then the
// original name, then the entity ID.
func (e *Entry) DisplayName() string {
	switch {
	case e.Name != "":
		return e.Name
	case e.OriginalName != "":
		return e.OriginalName
	default:
		return e.EntityID
	}
}

// DisplayIcon returns the icon override, falling back to the original icon.
func (e *Entry) DisplayIcon() string {
	if e.Icon != "" {
		return e.Icon
	}
	return e.OriginalIcon
}

// Clone returns a copy of the entry.
func (e *Entry) Clone() *Entry {
	c := *e
	return &c
}

// Area is a physical area entities can be assigned to.
type Area struct {
	ID        string    `json:"area_id" yaml:"area_id"`
	Name      string    `json:"name" yaml:"name"`
	CreatedAt time.Time `json:"created_at" yaml:"-"`
	UpdatedAt time.Time `json:"updated_at" yaml:"-"`
}

// State is a point-in-time snapshot of one entity.
//
// LastChanged moves only when the state string changes; LastUpdated moves
// whenever the state or its attributes change.
type State struct {
	EntityID    string         `json:"entity_id"`
	State       string         `json:"state"`
	Attributes  map[string]any `json:"attributes"`
	LastChanged time.Time      `json:"last_changed"`
	LastUpdated time.Time      `json:"last_updated"`
}

// Clone returns a deep copy of the snapshot.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	c := *s
	c.Attributes = deepCopyMap(s.Attributes)
	return &c
}

// Domain returns the part of the entity ID before the first dot.
func (s *State) Domain() string {
	return Domain(s.EntityID)
}

// ChangeEvent describes one observable change of an entity's state.
// OldState is nil when the entity first appears; NewState is nil when it
// is removed.
type ChangeEvent struct {
	EntityID  string    `json:"entity_id"`
	OldState  *State    `json:"old_state"`
	NewState  *State    `json:"new_state"`
	Origin    string    `json:"origin"`
	TimeFired time.Time `json:"time_fired"`
}

// Event origins.
const (
	OriginLocal  = "LOCAL"
	OriginRemote = "REMOTE"
)

// Domain returns the part of an entity ID before the first dot, or "" if
// there is none.
func Domain(entityID string) string {
	domain, _, ok := strings.Cut(entityID, ".")
	if !ok {
		return ""
	}
	return domain
}

// deepCopyMap copies nested maps and slices so callers cannot alias
// attributes held by the state machine.
func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		c := make([]any, len(val))
		for i, item := range val {
			c[i] = deepCopyValue(item)
		}
		return c
	default:
		return v
	}
}

// attributesEqual reports whether two attribute maps hold the same values.
func attributesEqual(a, b map[string]any) bool {
	if len(a) != len(b) {
		return false
	}
	return maps.EqualFunc(a, b, valuesEqual)
}

func valuesEqual(a, b any) bool {
	switch av := a.(type) {
	case map[string]any:
		bv, ok := b.(map[string]any)
		return ok && attributesEqual(av, bv)
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !valuesEqual(av[i], bv[i]) {
				return false
			}
		}
		return true
	default:
		// Uncomparable dynamic types panic on ==; treat them as different.
		defer func() { _ = recover() }()
		return a == b
	}
}
