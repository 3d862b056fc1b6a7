package configentry

import (
	"testing"

	"github.com/nerrad567/couch-control/internal/entity"
)

type fakeCatalog struct {
	entries []entity.Entry
	areas   map[string]entity.Area
}

func (f *fakeCatalog) List() []entity.Entry { return f.entries }

func (f *fakeCatalog) GetArea(id string) (*entity.Area, error) {
	a, ok := f.areas[id]
	if !ok {
		return nil, entity.ErrAreaNotFound
	}
	return &a, nil
}

func testCatalog() *fakeCatalog {
	return &fakeCatalog{
		entries: []entity.Entry{
			{EntityID: "light.kitchen", OriginalName: "Kitchen Light", AreaID: "kitchen"},
			{EntityID: "light.lounge", Name: "Lamp", OriginalName: "Lounge Lamp", AreaID: "lounge"},
			{EntityID: "sensor.outdoor", AreaID: "garden"},
			{EntityID: "switch.old", Disabled: true},
		},
		areas: map[string]entity.Area{
			"kitchen": {ID: "kitchen", Name: "Kitchen"},
			"lounge":  {ID: "lounge", Name: "Lounge"},
		},
	}
}

func TestCatalog_Labels(t *testing.T) {
	opts := Catalog(testCatalog(), GroupNone)

	want := []Option{
		{Value: "light.kitchen", Label: "Kitchen - Kitchen Light (light)"},
		{Value: "light.lounge", Label: "Lounge - Lamp (light)"},
		{Value: "sensor.outdoor", Label: "sensor.outdoor (sensor)"},
	}
	if len(opts) != len(want) {
		t.Fatalf("Catalog() = %+v", opts)
	}
	for i := range want {
		if opts[i] != want[i] {
			t.Errorf("opts[%d] = %+v, want %+v", i, opts[i], want[i])
		}
	}
}

func TestCatalog_GroupByDomain(t *testing.T) {
	opts := Catalog(testCatalog(), GroupDomain)

	values := make([]string, len(opts))
	for i, o := range opts {
		values[i] = o.Value
	}
	want := []string{
		"__header__.light", "light.kitchen", "light.lounge",
		"__header__.sensor", "sensor.outdoor",
	}
	if len(values) != len(want) {
		t.Fatalf("values = %v, want %v", values, want)
	}
	for i := range want {
		if values[i] != want[i] {
			t.Errorf("values[%d] = %s, want %s", i, values[i], want[i])
		}
	}
	if !opts[0].Header || opts[1].Header {
		t.Error("header flags wrong")
	}
	if selectable(opts) != 3 {
		t.Errorf("selectable = %d, want 3", selectable(opts))
	}
}

func TestCatalog_GroupByArea(t *testing.T) {
	opts := Catalog(testCatalog(), GroupArea)

	var headers []string
	for _, o := range opts {
		if o.Header {
			headers = append(headers, o.Value)
		}
	}
	want := []string{"__header__.kitchen", "__header__.lounge", "__header__.no_area"}
	if len(headers) != len(want) {
		t.Fatalf("headers = %v, want %v", headers, want)
	}
	for i := range want {
		if headers[i] != want[i] {
			t.Errorf("headers[%d] = %s, want %s", i, headers[i], want[i])
		}
	}
}

func TestStripHeaders(t *testing.T) {
	got := StripHeaders([]string{"__header__.light", "light.kitchen", "__header__.sensor", "sensor.temp"})
	if len(got) != 2 || got[0] != "light.kitchen" || got[1] != "sensor.temp" {
		t.Errorf("StripHeaders() = %v", got)
	}
	if got := StripHeaders(nil); got == nil || len(got) != 0 {
		t.Errorf("StripHeaders(nil) = %v", got)
	}
}

func TestParseGroupBy(t *testing.T) {
	tests := []struct {
		in      string
		want    GroupBy
		wantErr bool
	}{
		{"", GroupNone, false},
		{"none", GroupNone, false},
		{"domain", GroupDomain, false},
		{"area", GroupArea, false},
		{"device", "", true},
	}
	for _, tt := range tests {
		got, err := ParseGroupBy(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseGroupBy(%q) error = %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseGroupBy(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
