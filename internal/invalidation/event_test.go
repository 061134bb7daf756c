package invalidation

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func mustTS() time.Time { return time.Date(2025, 10, 26, 12, 30, 45, 0, time.UTC) }

const square = `{"type":"Polygon","coordinates":[[[-3.7,40.4],[-3.69,40.4],[-3.69,40.41],[-3.7,40.41],[-3.7,40.4]]]}`

func TestValidate_BBoxAndGeometryExclusive(t *testing.T) {
	ev := Event{
		Version: 1, Op: "update", Layer: "parcels", TS: mustTS(),
		BBox:     &BBox{X1: -3.7, Y1: 40.4, X2: -3.69, Y2: 40.41, SRID: "EPSG:4326"},
		Geometry: json.RawMessage(square),
	}
	if err := ev.Validate(); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("expected ErrInvalidEvent, got %v", err)
	}
}

func TestExtent(t *testing.T) {
	cases := []struct {
		name   string
		ev     Event
		wantX2 float64
		whole  bool
	}{
		{"bbox", Event{BBox: &BBox{X1: -3.7, Y1: 40.4, X2: -3.69, Y2: 40.41, SRID: "EPSG:4326"}}, -3.69, false},
		{"polygon", Event{Geometry: json.RawMessage(square)}, -3.69, false},
		{"whole layer", Event{}, 0, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.ev.Extent()
			if err != nil {
				t.Fatalf("Extent: %v", err)
			}
			if tc.whole {
				if got != nil {
					t.Fatalf("want nil extent, got %+v", got)
				}
				return
			}
			if got == nil || got.X2 != tc.wantX2 {
				t.Fatalf("extent got %+v", got)
			}
		})
	}
}

func TestDecode_Rejects(t *testing.T) {
	bad := []string{
		`not json`,
		`{"version":2,"op":"update","layer":"parcels","ts":"2025-10-26T12:30:45Z","bbox":{"x1":0,"y1":0,"x2":1,"y2":1}}`,
		`{"version":1,"op":"rename","layer":"parcels","ts":"2025-10-26T12:30:45Z","bbox":{"x1":0,"y1":0,"x2":1,"y2":1}}`,
		`{"version":1,"op":"update","layer":" ","ts":"2025-10-26T12:30:45Z","bbox":{"x1":0,"y1":0,"x2":1,"y2":1}}`,
		`{"version":1,"op":"update","layer":"parcels","bbox":{"x1":0,"y1":0,"x2":1,"y2":1}}`,
		`{"version":1,"op":"update","layer":"parcels","ts":"2025-10-26T12:30:45Z"}`,
		`{"version":1,"op":"update","layer":"parcels","ts":"2025-10-26T12:30:45Z","bbox":{"x1":1,"y1":0,"x2":1,"y2":1}}`,
		`{"version":1,"op":"update","layer":"parcels","ts":"2025-10-26T12:30:45Z","bbox":{"x1":0,"y1":0,"x2":1,"y2":1,"srid":"EPSG:3857"}}`,
		`{"version":1,"op":"update","layer":"parcels","ts":"2025-10-26T12:30:45Z","geometry":{"type":"Point","coordinates":[0,0]}}`,
	}
	for _, b := range bad {
		if _, err := Decode([]byte(b)); !errors.Is(err, ErrInvalidEvent) {
			t.Fatalf("%s: want ErrInvalidEvent, got %v", b, err)
		}
	}

	ev, err := Decode([]byte(`{"version":1,"op":"refresh","layer":"shadows","ts":"2025-10-26T12:30:45Z"}`))
	if err != nil || ev.Layer != "shadows" {
		t.Fatalf("refresh event: %+v %v", ev, err)
	}
}

func TestDedupeKey(t *testing.T) {
	if k := (Event{Layer: "parcels"}).DedupeKey(); k != "" {
		t.Fatalf("no feature id must give empty key, got %q", k)
	}
	if k := (Event{Layer: "parcels", FeatureID: 42.0}).DedupeKey(); k != "parcels|42" {
		t.Fatalf("key got %q", k)
	}
}
