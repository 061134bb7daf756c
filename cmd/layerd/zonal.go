package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/spf13/cobra"

	"github.com/mohammed-shakir/viewport-layers/internal/core/model"
	"github.com/mohammed-shakir/viewport-layers/internal/engine"
	"github.com/mohammed-shakir/viewport-layers/internal/zonal"
)

var (
	optZonalLayer   string
	optZonalCircle  string
	optZonalBBox    string
	optZonalShape   string
	optZonalTimeout time.Duration
)

var zonalCmd = &cobra.Command{
	Use:   "zonal",
	Short: "Compute zonal statistics of a layer inside a drawn shape",
	Example: `  layerd zonal --layer shadows --circle -3.70,40.41,150
  layerd zonal --layer irradiance --bbox -3.701,40.401,-3.699,40.403
  layerd zonal --layer shadows --shape '{"type":"polygon","coordinates":[[[-3.7,40.4],[-3.69,40.4],[-3.69,40.41],[-3.7,40.4]]]}'`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		shape, err := zonalShape()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), optZonalTimeout)
		defer cancel()

		st, err := buildStack(ctx, newLogger("zonal"), engine.NopObserver{}, nil)
		if err != nil {
			return err
		}
		defer st.close()

		stats, err := st.eng.Zonal(ctx, optZonalLayer, shape)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	},
}

func init() {
	zonalCmd.Flags().StringVar(&optZonalLayer, "layer", "", "layer id (required)")
	zonalCmd.Flags().StringVar(&optZonalCircle, "circle", "", "lon,lat,radius_m")
	zonalCmd.Flags().StringVar(&optZonalBBox, "bbox", "", "rectangle w,s,e,n")
	zonalCmd.Flags().StringVar(&optZonalShape, "shape", "", "shape as JSON")
	zonalCmd.Flags().DurationVar(&optZonalTimeout, "timeout", 30*time.Second, "request deadline")
	_ = zonalCmd.MarkFlagRequired("layer")
	zonalCmd.MarkFlagsMutuallyExclusive("circle", "bbox", "shape")
	zonalCmd.MarkFlagsOneRequired("circle", "bbox", "shape")
}

func zonalShape() (zonal.Shape, error) {
	switch {
	case optZonalCircle != "":
		parts := strings.Split(optZonalCircle, ",")
		if len(parts) != 3 {
			return zonal.Shape{}, errors.New("--circle: want lon,lat,radius_m")
		}
		var v [3]float64
		for i, p := range parts {
			f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
			if err != nil {
				return zonal.Shape{}, fmt.Errorf("--circle: %w", err)
			}
			v[i] = f
		}
		return zonal.Circle(orb.Point{v[0], v[1]}, v[2]), nil
	case optZonalBBox != "":
		bb, err := model.ParseBBox(optZonalBBox)
		if err != nil {
			return zonal.Shape{}, fmt.Errorf("--bbox: %w", err)
		}
		return zonal.Rect(bb), nil
	default:
		var s zonal.Shape
		if err := json.Unmarshal([]byte(optZonalShape), &s); err != nil {
			return zonal.Shape{}, fmt.Errorf("--shape: %w", err)
		}
		return s, nil
	}
}
