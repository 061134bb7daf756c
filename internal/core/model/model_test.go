package model

import (
	"math"
	"testing"
)

func almost(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestPad_ExpandsAllSides(t *testing.T) {
	b := BBox{X1: -3.70, Y1: 40.30, X2: -3.69, Y2: 40.31}
	p := b.Pad(0.10)

	if !almost(p.X1, -3.701) || !almost(p.X2, -3.689) {
		t.Fatalf("unexpected lon pad: %+v", p)
	}
	if !almost(p.Y1, 40.299) || !almost(p.Y2, 40.311) {
		t.Fatalf("unexpected lat pad: %+v", p)
	}
	if !p.Contains(b) {
		t.Fatalf("padded rect must contain original")
	}
	if got := b.Pad(0); got != b {
		t.Fatalf("zero pad changed rect: %+v", got)
	}
}

func TestContainsAndUnion(t *testing.T) {
	a := BBox{X1: 0, Y1: 0, X2: 10, Y2: 10}
	inner := BBox{X1: 2, Y1: 2, X2: 8, Y2: 8}
	edge := BBox{X1: 0, Y1: 0, X2: 10, Y2: 10}
	out := BBox{X1: 5, Y1: 5, X2: 12, Y2: 9}

	if !a.Contains(inner) || !a.Contains(edge) {
		t.Fatalf("expected containment")
	}
	if a.Contains(out) {
		t.Fatalf("did not expect containment of %+v", out)
	}

	u := a.Union(out)
	want := BBox{X1: 0, Y1: 0, X2: 12, Y2: 10}
	if u != want {
		t.Fatalf("union got %+v want %+v", u, want)
	}
	if !u.Contains(a) || !u.Contains(out) {
		t.Fatalf("union must contain both inputs")
	}
	if !a.Intersects(out) {
		t.Fatalf("expected intersection")
	}
}

func TestString_FeaturesAPIFormat(t *testing.T) {
	b := BBox{X1: -3.7, Y1: 40.3, X2: -3.69, Y2: 40.31}
	if got := b.String(); got != "-3.7,40.3,-3.69,40.31" {
		t.Fatalf("String got %q", got)
	}
}

func TestParseBBox(t *testing.T) {
	cases := []struct {
		name    string
		in      string
		wantErr bool
	}{
		{"ok", "-3.70,40.30,-3.69,40.31", false},
		{"spaces", " -3.70 , 40.30 , -3.69 , 40.31 ", false},
		{"three values", "1,2,3", true},
		{"not a number", "a,2,3,4", true},
		{"lon range", "-190,0,10,10", true},
		{"lat range", "0,-95,10,10", true},
		{"inverted", "10,10,0,0", true},
		{"degenerate", "1,1,1,2", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseBBox(tc.in)
			if (err != nil) != tc.wantErr {
				t.Fatalf("ParseBBox(%q) err=%v wantErr=%v", tc.in, err, tc.wantErr)
			}
		})
	}
}

func TestValid_RejectsNaN(t *testing.T) {
	if (BBox{X1: math.NaN(), Y1: 0, X2: 1, Y2: 1}).Valid() {
		t.Fatalf("NaN bbox must be invalid")
	}
}
