package layer

import "testing"

func TestCatalog_Valid(t *testing.T) {
	seen := map[string]bool{}
	panes := map[string]bool{}
	for _, s := range Catalog() {
		if err := s.Validate(); err != nil {
			t.Fatalf("%s: %v", s.ID, err)
		}
		if seen[s.ID] || panes[s.Pane] {
			t.Fatalf("duplicate id or pane for %s", s.ID)
		}
		seen[s.ID], panes[s.Pane] = true, true
	}
	for _, id := range []string{Parcels, Shadows, Irradiance, BuildingIrradiance} {
		if !seen[id] {
			t.Fatalf("missing layer %s", id)
		}
	}
}

func TestCatalog_ShadowBudgetByZoom(t *testing.T) {
	for _, s := range Catalog() {
		if s.ID != Shadows {
			continue
		}
		if got := s.Budget.Limit(19); got != 100000 {
			t.Fatalf("z19 limit got %d", got)
		}
		if got := s.Budget.Limit(18); got != 50000 {
			t.Fatalf("z18 limit got %d", got)
		}
		if s.Active(17) || !s.Active(18) {
			t.Fatalf("shadows band must be 18-19")
		}
		return
	}
	t.Fatalf("shadows not in catalog")
}

func TestOverride(t *testing.T) {
	specs := Override(Catalog(),
		map[string][2]int{Shadows: {17, 19}},
		map[string]float64{Parcels: 0.2})
	for _, s := range specs {
		switch s.ID {
		case Shadows:
			if s.Band != (Band{Min: 17, Max: 19}) {
				t.Fatalf("shadows band got %+v", s.Band)
			}
		case Parcels:
			if s.Pad != 0.2 {
				t.Fatalf("parcels pad got %v", s.Pad)
			}
		}
	}
	for _, s := range Catalog() {
		if s.ID == Shadows && s.Band.Min != 18 {
			t.Fatalf("override must not mutate the catalog")
		}
	}
}
