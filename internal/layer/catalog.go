package layer

import (
	"github.com/mohammed-shakir/viewport-layers/internal/coverage"
	"github.com/mohammed-shakir/viewport-layers/internal/fetch"
	"github.com/mohammed-shakir/viewport-layers/internal/style"
)

const (
	Parcels            = "parcels"
	Shadows            = "shadows"
	Irradiance         = "irradiance"
	BuildingIrradiance = "building_irradiance"
)

// Catalog returns the municipal layer set.
func Catalog() []Spec {
	irr := style.IrradianceBins
	return []Spec{
		{
			ID:          Parcels,
			Endpoint:    "/parcels/features",
			Band:        Band{Min: 15, Max: 19},
			Pad:         0.10,
			Budget:      fetch.Budget{Max: 500000},
			Coverage:    coverage.StrategyUnion,
			Pane:        "parcels-pane",
			Z:           430,
			FadeOpacity: 1,
			Accumulate:  true,
			Interactive: true,
			Color:       Color{Static: "#ecb7b7"},
		},
		{
			ID:            BuildingIrradiance,
			Endpoint:      "/buildings/irradiance",
			ZonalEndpoint: "/irradiance/zonal",
			Band:          Band{Min: 13, Max: 18},
			Budget:        fetch.Budget{Max: 50000},
			Coverage:      coverage.StrategyMovement,
			Threshold:     coverage.DefaultThreshold,
			Pane:          "buildings-irr-pane",
			Z:             620,
			FadeOpacity:   1,
			Interactive:   true,
			Color:         Color{Attribute: "irr_building", Adaptive: 7},
		},
		{
			ID:            Shadows,
			Endpoint:      "/shadows/features",
			ZonalEndpoint: "/shadows/zonal",
			Table:         "puntos_no_parcelas",
			Band:          Band{Min: 18, Max: 19},
			Pad:           0.10,
			Budget:        fetch.Budget{Max: 100000, Min: 25000, FullZoom: 19},
			Coverage:      coverage.StrategyMovement,
			Threshold:     coverage.DefaultThreshold,
			Pane:          "shadows-pane",
			Z:             640,
			FadeOpacity:   0,
			Color: Color{Attribute: "shadow_count", ByMode: map[style.Mode]style.Palette{
				style.ModeShadow:     style.ShadowBins,
				style.ModeIrradiance: style.ShadowIrradianceBins,
			}},
			Mode:   style.ModeShadow,
			Radius: style.ShadowRadius,
		},
		{
			ID:            Irradiance,
			Endpoint:      "/irradiance/features",
			ZonalEndpoint: "/irradiance/zonal",
			Band:          Band{Min: 19, Max: 19},
			Pad:           0.10,
			Budget:        fetch.Budget{Max: 100000},
			PageSize:      20000,
			Coverage:      coverage.StrategyMovement,
			Threshold:     coverage.DefaultThreshold,
			Pane:          "irradiance-pane",
			Z:             650,
			FadeOpacity:   0.2,
			Color:         Color{Attribute: "value", Palette: &irr},
			Radius:        style.IrradianceRadius,
		},
	}
}

// Override adjusts bands and pads from configuration.
func Override(specs []Spec, bands map[string][2]int, pads map[string]float64) []Spec {
	out := make([]Spec, len(specs))
	copy(out, specs)
	for i := range out {
		if b, ok := bands[out[i].ID]; ok {
			out[i].Band = Band{Min: b[0], Max: b[1]}
		}
		if p, ok := pads[out[i].ID]; ok {
			out[i].Pad = p
		}
	}
	return out
}
