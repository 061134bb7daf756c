package observability

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"method", "route", "status"},
	)

	upstreamLatencySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_latency_seconds",
			Help:    "Latency of upstream calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"upstream"},
	)

	buildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_build_info",
			Help: "Build information for the binary.",
		},
		[]string{"version"},
	)

	layerFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "layer_fetch_total",
			Help: "Layer fetches by outcome (ok, empty, error, canceled).",
		},
		[]string{"layer", "outcome"},
	)

	layerFetchSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "layer_fetch_skipped_total",
			Help: "Viewport updates that did not trigger a fetch, by reason.",
		},
		[]string{"layer", "reason"},
	)

	layerFetchSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "layer_fetch_duration_seconds",
			Help:    "Time from fetch start to features in hand.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"layer"},
	)

	renderBatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "layer_render_batches_total",
			Help: "Batches appended by the progressive renderer.",
		},
		[]string{"layer"},
	)

	layerSwaps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "layer_swaps_total",
			Help: "Pending layers promoted to displayed, by kind (replace, absorb).",
		},
		[]string{"layer", "kind"},
	)

	layerLoading = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "layer_loading",
			Help: "1 while a layer has a fetch or render in flight.",
		},
		[]string{"layer"},
	)

	layerPrimitives = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "layer_displayed_primitives",
			Help: "Primitives in the displayed layer.",
		},
		[]string{"layer"},
	)

	cacheResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_results_total",
			Help: "Feature response cache results by tier and outcome.",
		},
		[]string{"tier", "outcome"},
	)

	cacheOpSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cache_op_duration_seconds",
			Help:    "Redis operation latency.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"op", "result"},
	)

	kafkaMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_total",
			Help: "Kafka messages by direction and result.",
		},
		[]string{"direction", "result"},
	)

	all = []prometheus.Collector{
		httpRequestsTotal, httpRequestDurationSeconds, upstreamLatencySeconds,
		layerFetches, layerFetchSkipped, layerFetchSeconds, renderBatches, layerSwaps,
		layerLoading, layerPrimitives, cacheResults, cacheOpSeconds, kafkaMessages,
	}
)

// Init additionally registers every collector on reg (a metrics.Provider registry).
// Build info is left out, the provider exposes its own.
func Init(reg prometheus.Registerer, enabled bool) {
	if !enabled || reg == nil {
		return
	}
	for _, c := range all {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			panic(err)
		}
	}
}

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

func ObserveUpstreamLatency(upstream string, durationSeconds float64) {
	upstreamLatencySeconds.WithLabelValues(upstream).Observe(durationSeconds)
}

func ObserveFetch(layer, outcome string, durationSeconds float64) {
	layerFetches.WithLabelValues(layer, outcome).Inc()
	if outcome != "canceled" {
		layerFetchSeconds.WithLabelValues(layer).Observe(durationSeconds)
	}
}

func IncFetchSkipped(layer, reason string) {
	layerFetchSkipped.WithLabelValues(layer, reason).Inc()
}

func IncRenderBatch(layer string) {
	renderBatches.WithLabelValues(layer).Inc()
}

func IncSwap(layer, kind string) {
	layerSwaps.WithLabelValues(layer, kind).Inc()
}

func SetLoading(layer string, loading bool) {
	v := 0.0
	if loading {
		v = 1
	}
	layerLoading.WithLabelValues(layer).Set(v)
}

func SetDisplayed(layer string, n int) {
	layerPrimitives.WithLabelValues(layer).Set(float64(n))
}

func IncCacheResult(tier, outcome string) {
	cacheResults.WithLabelValues(tier, outcome).Inc()
}

func ObserveCacheOp(op string, err error, durationSeconds float64) {
	res := "ok"
	if err != nil {
		res = "error"
	}
	cacheOpSeconds.WithLabelValues(op, res).Observe(durationSeconds)
}

func IncKafka(direction, result string) {
	kafkaMessages.WithLabelValues(direction, result).Inc()
}

func ExposeBuildInfo(version string) {
	if version == "" {
		version = "dev"
	}
	buildInfo.WithLabelValues(version).Set(1)
}
