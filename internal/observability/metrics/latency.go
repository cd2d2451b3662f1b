package metrics

import (
	"encoding/json"
	"math"
	"net/http"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

const providerLatencyFamily = "careplus_dispatch_provider_latency_seconds"

// LatencySnapshot summarizes provider call latency for one channel.
type LatencySnapshot struct {
	Channel string  `json:"channel"`
	Total   int64   `json:"total"`
	P50Ms   float64 `json:"p50_ms"`
	P90Ms   float64 `json:"p90_ms"`
	P95Ms   float64 `json:"p95_ms"`
}

// SnapshotProviderLatency reads the provider latency histogram from gatherer and
// aggregates it across providers for channel.
func SnapshotProviderLatency(gatherer prometheus.Gatherer, channel string) LatencySnapshot {
	snap := LatencySnapshot{Channel: channel}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mfs, err := gatherer.Gather()
	if err != nil {
		return snap
	}

	var family *dto.MetricFamily
	for _, mf := range mfs {
		if mf != nil && mf.GetName() == providerLatencyFamily {
			family = mf
			break
		}
	}
	if family == nil {
		return snap
	}

	cumulativeByUpper := map[float64]uint64{}
	var sampleCount uint64
	for _, metric := range family.Metric {
		if metric == nil || !hasLabel(metric, "channel", channel) {
			continue
		}
		h := metric.GetHistogram()
		if h == nil {
			continue
		}
		sampleCount += h.GetSampleCount()
		for _, b := range h.Bucket {
			if b == nil {
				continue
			}
			cumulativeByUpper[b.GetUpperBound()] += b.GetCumulativeCount()
		}
	}
	if sampleCount == 0 || len(cumulativeByUpper) == 0 {
		return snap
	}

	uppers := make([]float64, 0, len(cumulativeByUpper))
	for upper := range cumulativeByUpper {
		uppers = append(uppers, upper)
	}
	sort.Float64s(uppers)

	snap.Total = int64(sampleCount)
	snap.P50Ms = histogramQuantile(0.50, sampleCount, uppers, cumulativeByUpper) * 1000.0
	snap.P90Ms = histogramQuantile(0.90, sampleCount, uppers, cumulativeByUpper) * 1000.0
	snap.P95Ms = histogramQuantile(0.95, sampleCount, uppers, cumulativeByUpper) * 1000.0
	return snap
}

// LatencyHandler serves provider latency snapshots for the given channels as JSON.
func LatencyHandler(gatherer prometheus.Gatherer, channels []string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		out := make([]LatencySnapshot, 0, len(channels))
		for _, ch := range channels {
			out = append(out, SnapshotProviderLatency(gatherer, ch))
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"providers": out})
	})
}

func hasLabel(metric *dto.Metric, name, value string) bool {
	for _, lp := range metric.Label {
		if lp == nil {
			continue
		}
		if lp.GetName() == name && lp.GetValue() == value {
			return true
		}
	}
	return false
}

func histogramQuantile(q float64, total uint64, uppers []float64, cumulativeByUpper map[float64]uint64) float64 {
	if total == 0 || q <= 0 {
		return 0
	}

	target := q * float64(total)
	var prevUpper, prevCum float64
	for _, upper := range uppers {
		cum := float64(cumulativeByUpper[upper])
		if cum < target {
			prevUpper = upper
			prevCum = cum
			continue
		}

		bucketCount := cum - prevCum
		if bucketCount <= 0 || upper == prevUpper {
			return upper
		}
		if math.IsInf(upper, 1) {
			return prevUpper
		}

		fraction := (target - prevCum) / bucketCount
		fraction = math.Max(0, math.Min(1, fraction))
		return prevUpper + fraction*(upper-prevUpper)
	}

	for i := len(uppers) - 1; i >= 0; i-- {
		if !math.IsInf(uppers[i], 1) {
			return uppers[i]
		}
	}
	return 0
}
