package keys

import (
	"regexp"
	"strings"
	"testing"
	"unicode"

	"github.com/mohammed-shakir/viewport-layers/internal/core/model"
)

var bb = model.BBox{X1: -3.71, Y1: 40.29, X2: -3.68, Y2: 40.32}

func TestDeterminism_SameInputsSameKey(t *testing.T) {
	q := Query{Layer: "shadows", Endpoint: "/shadows/features", Table: "puntos_no_parcelas", BBox: bb, Limit: 100000}
	if Key(q) != Key(q) {
		t.Fatalf("determinism failed")
	}
	if !regexp.MustCompile(`^[A-Za-z0-9:_=.\-]+$`).MatchString(Key(q)) {
		t.Fatalf("key contains disallowed characters: %s", Key(q))
	}
}

func TestDifference_EachFieldChangesKey(t *testing.T) {
	base := Query{Layer: "parcels", Endpoint: "/parcels/features", BBox: bb, Limit: 500000}
	variants := []Query{
		{Layer: "parcels", Endpoint: "/parcels/features", BBox: bb, Limit: 1000},
		{Layer: "parcels", Endpoint: "/parcels/features", BBox: bb, Limit: 500000, Offset: 2000},
		{Layer: "parcels", Endpoint: "/parcels/features", BBox: bb.Pad(0.1), Limit: 500000},
		{Layer: "parcels", Endpoint: "/parcels/features", Table: "t2", BBox: bb, Limit: 500000},
		{Layer: "parcels", Endpoint: "/other", BBox: bb, Limit: 500000},
	}
	k := Key(base)
	for i, v := range variants {
		if Key(v) == k {
			t.Fatalf("variant %d must differ from base key %s", i, k)
		}
	}
}

func TestLayerPrefix_MatchesKeysOfLayerOnly(t *testing.T) {
	k := Key(Query{Layer: "shadows", Endpoint: "/shadows/features", BBox: bb})
	if !strings.HasPrefix(k, LayerPrefix("shadows")) {
		t.Fatalf("key %s lacks prefix %s", k, LayerPrefix("shadows"))
	}
	if strings.HasPrefix(k, LayerPrefix("shadow")) {
		t.Fatalf("prefix of a different layer must not match")
	}
}

func TestUnicodeSafety_NoNonASCII(t *testing.T) {
	k := Key(Query{Layer: "capa sombra", Table: "tabla:ñ 雪", BBox: bb})
	for _, r := range k {
		if r > unicode.MaxASCII {
			t.Fatalf("non-ASCII rune leaked into key: %q in %s", r, k)
		}
	}
	if !regexp.MustCompile(`:f=([0-9a-f]{16})$`).MatchString(k) {
		t.Fatalf("missing :f=<hex64> suffix in key: %s", k)
	}
	if strings.Count(k, ":") != 5 {
		t.Fatalf("table separator leaked into key segments: %s", k)
	}
}
