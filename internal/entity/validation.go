package entity

import (
	"fmt"
	"regexp"
	"strings"
)

// Validation limits.
const (
	maxEntityIDLength  = 255
	maxNameLength      = 100
	maxAttributeKeys   = 100
	maxStateLength     = 255
	maxAttributesDepth = 5
)

var (
	entityIDRegex = regexp.MustCompile(`^[a-z0-9_]+\.[a-z0-9_]+$`)
	areaIDRegex   = regexp.MustCompile(`^[a-z0-9_]+$`)
)

// ValidateEntityID checks the "<domain>.<object_id>" format.
func ValidateEntityID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty", ErrInvalidEntityID)
	}
	if len(id) > maxEntityIDLength {
		return fmt.Errorf("%w: longer than %d characters", ErrInvalidEntityID, maxEntityIDLength)
	}
	if !entityIDRegex.MatchString(id) {
		return fmt.Errorf("%w: %q must be <domain>.<object_id> in lowercase letters, digits and underscores", ErrInvalidEntityID, id)
	}
	if strings.HasPrefix(id, "_") || strings.HasSuffix(id, "_") {
		return fmt.Errorf("%w: %q must not start or end with an underscore", ErrInvalidEntityID, id)
	}
	return nil
}

// ValidateEntry checks a registry entry before it is persisted.
func ValidateEntry(e *Entry) error {
	if e == nil {
		return fmt.Errorf("%w: nil entry", ErrInvalidEntry)
	}
	if err := ValidateEntityID(e.EntityID); err != nil {
		return err
	}
	if len(e.Name) > maxNameLength || len(e.OriginalName) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidEntry, maxNameLength)
	}
	if e.AreaID != "" && !areaIDRegex.MatchString(e.AreaID) {
		return fmt.Errorf("%w: area_id %q", ErrInvalidEntry, e.AreaID)
	}
	return nil
}

// ValidateArea checks an area before it is persisted.
func ValidateArea(a *Area) error {
	if a == nil {
		return fmt.Errorf("%w: nil area", ErrInvalidArea)
	}
	if !areaIDRegex.MatchString(a.ID) {
		return fmt.Errorf("%w: area_id %q must be lowercase letters, digits and underscores", ErrInvalidArea, a.ID)
	}
	if a.Name == "" || len(a.Name) > maxNameLength {
		return fmt.Errorf("%w: name must be 1-%d characters", ErrInvalidArea, maxNameLength)
	}
	return nil
}

// validateStateWrite checks a state machine write.
func validateStateWrite(entityID, state string, attrs map[string]any) error {
	if err := ValidateEntityID(entityID); err != nil {
		return err
	}
	if len(state) > maxStateLength {
		return fmt.Errorf("%w: state longer than %d characters", ErrInvalidState, maxStateLength)
	}
	if len(attrs) > maxAttributeKeys {
		return fmt.Errorf("%w: more than %d attributes", ErrInvalidState, maxAttributeKeys)
	}
	if depth(attrs, 0) > maxAttributesDepth {
		return fmt.Errorf("%w: attributes nested deeper than %d", ErrInvalidState, maxAttributesDepth)
	}
	return nil
}

func depth(v any, d int) int {
	deepest := d
	switch val := v.(type) {
	case map[string]any:
		for _, item := range val {
			deepest = max(deepest, depth(item, d+1))
		}
	case []any:
		for _, item := range val {
			deepest = max(deepest, depth(item, d+1))
		}
	}
	return deepest
}

// Slugify turns a display name into an area ID: "Living Room" -> "living_room".
func Slugify(name string) string {
	var b strings.Builder
	lastUnderscore := true
	for _, r := range strings.ToLower(name) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			lastUnderscore = false
		case !lastUnderscore:
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}
