package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mohammed-shakir/viewport-layers/internal/core/model"
	"github.com/mohammed-shakir/viewport-layers/internal/engine"
)

var (
	optProbeBBox    string
	optProbeZoom    int
	optProbeLayer   string
	optProbeTimeout time.Duration
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Load one viewport and print the resulting layer states",
	Long: `probe applies a single viewport snapshot to every layer, waits for the
fetches to settle and prints the layer states as JSON. With --layer the
displayed GeoJSON of that layer is printed instead.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), optProbeTimeout)
		defer cancel()
		return probe(ctx)
	},
}

func init() {
	probeCmd.Flags().StringVar(&optProbeBBox, "bbox", "", "viewport w,s,e,n (required)")
	probeCmd.Flags().IntVar(&optProbeZoom, "zoom", 18, "viewport zoom")
	probeCmd.Flags().StringVar(&optProbeLayer, "layer", "", "print the displayed features of this layer")
	probeCmd.Flags().DurationVar(&optProbeTimeout, "timeout", 60*time.Second, "overall deadline")
	_ = probeCmd.MarkFlagRequired("bbox")
}

func probe(ctx context.Context) error {
	log := newLogger("probe")
	bbox, err := model.ParseBBox(optProbeBBox)
	if err != nil {
		return fmt.Errorf("--bbox: %w", err)
	}

	st, err := buildStack(ctx, log, engine.NopObserver{}, nil)
	if err != nil {
		return err
	}
	defer st.close()

	st.eng.OnViewport(model.Snapshot{BBox: bbox, Zoom: optProbeZoom})
	done := make(chan struct{})
	go func() {
		st.eng.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("probe: %w", ctx.Err())
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if optProbeLayer != "" {
		c, ok := st.eng.Layer(optProbeLayer)
		if !ok {
			return fmt.Errorf("%w: %q", engine.ErrUnknownLayer, optProbeLayer)
		}
		return enc.Encode(c.Displayed())
	}
	return enc.Encode(st.eng.Layers())
}
