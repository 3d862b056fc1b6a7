package entity

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Seed is the YAML document used to pre-populate the registry.
//
// Example:
//
//	areas:
//	  - name: Living Room
//	entities:
//	  - entity_id: light.living_room
//	    original_name: Living Room Lamp
//	    area_id: living_room
//	states:
//	  - entity_id: light.living_room
//	    state: "off"
type Seed struct {
	Areas    []Area      `yaml:"areas"`
	Entities []Entry     `yaml:"entities"`
	States   []SeedState `yaml:"states"`
}

// SeedState is an initial live state.
type SeedState struct {
	EntityID   string         `yaml:"entity_id"`
	State      string         `yaml:"state"`
	Attributes map[string]any `yaml:"attributes"`
}

// LoadSeed reads a seed file. Unknown keys are rejected.
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from operator config
	if err != nil {
		return nil, fmt.Errorf("reading seed file: %w", err)
	}
	return ParseSeed(data)
}

// ParseSeed decodes a seed document.
func ParseSeed(data []byte) (*Seed, error) {
	var seed Seed
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&seed); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing seed file: %w", err)
	}
	return &seed, nil
}

// ApplySeed writes the seed's areas and entities into the registry and its
// states into the state machine. sm may be nil. Existing rows are updated.
//
// Returns:
//   - int: number of registry rows written (areas plus entities)
//   - error: the first failing write, wrapped with the offending ID
func ApplySeed(ctx context.Context, reg *Registry, sm *StateMachine, seed *Seed) (int, error) {
	written := 0
	for i := range seed.Areas {
		a := seed.Areas[i]
		if err := reg.UpsertArea(ctx, &a); err != nil {
			return written, fmt.Errorf("seeding area %q: %w", a.Name, err)
		}
		written++
	}
	for i := range seed.Entities {
		e := seed.Entities[i]
		if e.Platform == "" {
			e.Platform = "seed"
		}
		if err := reg.Upsert(ctx, &e); err != nil {
			return written, fmt.Errorf("seeding entity %q: %w", e.EntityID, err)
		}
		written++
	}
	if sm == nil {
		return written, nil
	}
	for _, s := range seed.States {
		if _, err := sm.Set(s.EntityID, s.State, s.Attributes, OriginLocal); err != nil {
			return written, fmt.Errorf("seeding state %q: %w", s.EntityID, err)
		}
	}
	return written, nil
}
