package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type KafkaCfg struct {
	Brokers           string
	ViewportTopic     string
	InvalidationTopic string
	GroupID           string
}

type Config struct {
	Addr             string
	CORSOrigins      []string
	LogLevel         string
	LogConsole       bool
	LogSampleN       int
	FeaturesAPIURL   string
	ViewportDebounce time.Duration
	RenderBatchSize  int
	RenderFrameDelay time.Duration

	CacheEnabled    bool
	RedisAddr       string
	CacheOpTimeout  time.Duration
	CacheTTLDefault time.Duration
	CacheTTLOvr     map[string]time.Duration
	CacheLRUSize    int

	EventsEnabled       bool
	InvalidationEnabled bool
	Kafka               KafkaCfg

	// per-layer overrides, "shadows=18-19,irradiance=19-19"
	LayerBands map[string][2]int
	// per-layer pad ratio overrides, "parcels=0.2"
	LayerPads map[string]float64
}

func FromEnv() Config {
	batch := getint("RENDER_BATCH_SIZE", 2000)
	if batch <= 0 {
		batch = 2000
	}

	return Config{
		Addr:             getenv("ADDR", ":8095"),
		CORSOrigins:      splitCSV(getenv("CORS_ORIGINS", "")),
		LogLevel:         getenv("LOG_LEVEL", "info"),
		LogConsole:       getbool("LOG_CONSOLE", false),
		LogSampleN:       getint("LOG_SAMPLE_N", 0),
		FeaturesAPIURL:   getenv("FEATURES_API_URL", "http://127.0.0.1:8000"),
		ViewportDebounce: getduration("VIEWPORT_DEBOUNCE", 280*time.Millisecond),
		RenderBatchSize:  batch,
		RenderFrameDelay: getduration("RENDER_FRAME_DELAY", 16*time.Millisecond),

		CacheEnabled:    getbool("CACHE_ENABLED", false),
		RedisAddr:       getenv("REDIS_ADDR", "localhost:6379"),
		CacheOpTimeout:  getduration("CACHE_OP_TIMEOUT", 250*time.Millisecond),
		CacheTTLDefault: getduration("CACHE_TTL_DEFAULT", 60*time.Second),
		CacheTTLOvr:     parseDurationMap(getenv("CACHE_TTL_OVERRIDES", "")),
		CacheLRUSize:    getint("CACHE_LRU_SIZE", 64),

		EventsEnabled:       getbool("EVENTS_ENABLED", false),
		InvalidationEnabled: getbool("INVALIDATION_ENABLED", false),
		Kafka: KafkaCfg{
			Brokers:           getenv("KAFKA_BROKERS", "localhost:9092"),
			ViewportTopic:     getenv("KAFKA_VIEWPORT_TOPIC", "viewport-events"),
			InvalidationTopic: getenv("KAFKA_INVALIDATION_TOPIC", "layer-invalidation"),
			GroupID:           getenv("KAFKA_GROUP_ID", "layer-engine"),
		},

		LayerBands: parseBandMap(getenv("LAYER_BANDS", "")),
		LayerPads:  parseFloatMap(getenv("LAYER_PADS", "")),
	}
}

// TTLFor returns the cache ttl for a layer id
func (c Config) TTLFor(layer string) time.Duration {
	if d, ok := c.CacheTTLOvr[layer]; ok {
		return d
	}
	return c.CacheTTLDefault
}

func (c Config) Brokers() []string {
	return splitCSV(c.Kafka.Brokers)
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// splits "k=v,k2=v2" into trimmed pairs, skipping malformed entries
func pairs(s string) [][2]string {
	var out [][2]string
	s = strings.TrimSpace(s)
	if s == "" {
		return out
	}
	for p := range strings.SplitSeq(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		k := strings.TrimSpace(kv[0])
		v := strings.TrimSpace(kv[1])
		if k == "" {
			continue
		}
		out = append(out, [2]string{k, v})
	}
	return out
}

// parse "layer=5m,other=30s" into map
func parseDurationMap(s string) map[string]time.Duration {
	out := map[string]time.Duration{}
	for _, kv := range pairs(s) {
		if d, err := time.ParseDuration(kv[1]); err == nil {
			out[kv[0]] = d
		}
	}
	return out
}

// parse "layer=0.2" into map
func parseFloatMap(s string) map[string]float64 {
	out := map[string]float64{}
	for _, kv := range pairs(s) {
		if f, err := strconv.ParseFloat(kv[1], 64); err == nil && f >= 0 {
			out[kv[0]] = f
		}
	}
	return out
}

// parse "shadows=18-19" into map of inclusive zoom bands
func parseBandMap(s string) map[string][2]int {
	out := map[string][2]int{}
	for _, kv := range pairs(s) {
		lo, hi, ok := strings.Cut(kv[1], "-")
		if !ok {
			continue
		}
		minZ, err1 := strconv.Atoi(strings.TrimSpace(lo))
		maxZ, err2 := strconv.Atoi(strings.TrimSpace(hi))
		if err1 != nil || err2 != nil || minZ > maxZ || minZ < 0 {
			continue
		}
		out[kv[0]] = [2]int{minZ, maxZ}
	}
	return out
}

func splitCSV(s string) []string {
	var out []string
	for p := range strings.SplitSeq(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
