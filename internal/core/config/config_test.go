package config

import (
	"testing"
	"time"
)

func TestFromEnv_Defaults(t *testing.T) {
	t.Setenv("VIEWPORT_DEBOUNCE", "")
	t.Setenv("RENDER_BATCH_SIZE", "")
	t.Setenv("LAYER_BANDS", "")

	cfg := FromEnv()
	if cfg.ViewportDebounce != 280*time.Millisecond {
		t.Fatalf("debounce got %v", cfg.ViewportDebounce)
	}
	if cfg.RenderBatchSize != 2000 {
		t.Fatalf("batch got %d", cfg.RenderBatchSize)
	}
	if cfg.RenderFrameDelay != 16*time.Millisecond {
		t.Fatalf("frame delay got %v", cfg.RenderFrameDelay)
	}
	if len(cfg.LayerBands) != 0 {
		t.Fatalf("unexpected bands %v", cfg.LayerBands)
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("RENDER_BATCH_SIZE", "-5")
	t.Setenv("CACHE_ENABLED", "yes")
	t.Setenv("CACHE_TTL_DEFAULT", "2m")
	t.Setenv("CACHE_TTL_OVERRIDES", "parcels=10m, bad, shadows=oops ,=1s")
	t.Setenv("LAYER_BANDS", "shadows=17-19,irradiance=19-18,bogus")
	t.Setenv("LAYER_PADS", "parcels=0.2,shadows=-1")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092,,")

	cfg := FromEnv()
	if cfg.RenderBatchSize != 2000 {
		t.Fatalf("non-positive batch must fall back, got %d", cfg.RenderBatchSize)
	}
	if !cfg.CacheEnabled {
		t.Fatalf("expected cache enabled")
	}
	if got := cfg.TTLFor("parcels"); got != 10*time.Minute {
		t.Fatalf("parcels ttl got %v", got)
	}
	if got := cfg.TTLFor("shadows"); got != 2*time.Minute {
		t.Fatalf("shadows ttl must fall back to default, got %v", got)
	}
	if b, ok := cfg.LayerBands["shadows"]; !ok || b != [2]int{17, 19} {
		t.Fatalf("shadows band got %v ok=%v", b, ok)
	}
	if _, ok := cfg.LayerBands["irradiance"]; ok {
		t.Fatalf("inverted band must be ignored")
	}
	if cfg.LayerPads["parcels"] != 0.2 {
		t.Fatalf("parcels pad got %v", cfg.LayerPads["parcels"])
	}
	if _, ok := cfg.LayerPads["shadows"]; ok {
		t.Fatalf("negative pad must be ignored")
	}
	if got := cfg.Brokers(); len(got) != 2 || got[1] != "b:9092" {
		t.Fatalf("brokers got %v", got)
	}
}
