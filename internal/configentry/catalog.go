package configentry

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/nerrad567/couch-control/internal/entity"
)

// HeaderPrefix marks non-selectable group header rows in a catalog.
const HeaderPrefix = "__header__."

// GroupBy selects how catalog options are grouped.
type GroupBy string

// Grouping modes.
const (
	GroupNone   GroupBy = "none"
	GroupDomain GroupBy = "domain"
	GroupArea   GroupBy = "area"
)

// ParseGroupBy converts a submitted value, defaulting to GroupNone.
func ParseGroupBy(s string) (GroupBy, error) {
	switch GroupBy(s) {
	case "", GroupNone:
		return GroupNone, nil
	case GroupDomain, GroupArea:
		return GroupBy(s), nil
	default:
		return "", fmt.Errorf("%w: unknown group_by %q", ErrInvalidFlow, s)
	}
}

// noAreaGroup is the heading for entities without a resolvable area.
const noAreaGroup = "No area"

// Option is one row of the entity picker.
type Option struct {
	Value  string `json:"value"`
	Label  string `json:"label"`
	Header bool   `json:"header,omitempty"`
}

// CatalogSource is the registry view the catalog is built from.
// entity.Registry satisfies it.
type CatalogSource interface {
	List() []entity.Entry
	GetArea(areaID string) (*entity.Area, error)
}

// Catalog lists the enabled registry entities as picker options.
//
// Labels are "<name> (<domain>)", prefixed with "<area> - " when the
// entity's area resolves. With GroupDomain or GroupArea, each group is
// preceded by a header option whose value starts with HeaderPrefix.
func Catalog(src CatalogSource, groupBy GroupBy) []Option {
	type row struct {
		opt   Option
		group string
	}

	entries := src.List()
	rows := make([]row, 0, len(entries))
	for i := range entries {
		e := &entries[i]
		if e.Disabled {
			continue
		}

		label := e.DisplayName()
		areaName := ""
		if e.AreaID != "" {
			if a, err := src.GetArea(e.AreaID); err == nil {
				areaName = a.Name
				label = areaName + " - " + label
			}
		}
		label = fmt.Sprintf("%s (%s)", label, e.Domain())

		r := row{opt: Option{Value: e.EntityID, Label: label}}
		switch groupBy {
		case GroupDomain:
			r.group = e.Domain()
		case GroupArea:
			r.group = cmp.Or(areaName, noAreaGroup)
		}
		rows = append(rows, r)
	}

	if groupBy != GroupDomain && groupBy != GroupArea {
		out := make([]Option, len(rows))
		for i, r := range rows {
			out[i] = r.opt
		}
		return out
	}

	// Stable sort keeps registry order within a group.
	slices.SortStableFunc(rows, func(a, b row) int {
		return cmp.Compare(a.group, b.group)
	})

	out := make([]Option, 0, len(rows)+8)
	current := ""
	for i, r := range rows {
		if i == 0 || r.group != current {
			current = r.group
			out = append(out, Option{
				Value:  HeaderPrefix + headerKey(r.group),
				Label:  "── " + r.group + " ──",
				Header: true,
			})
		}
		out = append(out, r.opt)
	}
	return out
}

func headerKey(group string) string {
	return strings.ReplaceAll(strings.ToLower(group), " ", "_")
}

// StripHeaders removes header pseudo-entries from a submitted selection.
func StripHeaders(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if strings.HasPrefix(id, HeaderPrefix) {
			continue
		}
		out = append(out, id)
	}
	return out
}

// selectable counts options that are not headers.
func selectable(opts []Option) int {
	n := 0
	for _, o := range opts {
		if !o.Header {
			n++
		}
	}
	return n
}
