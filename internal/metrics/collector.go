// ABOUTME: Prometheus collector exporting voice manager health
// ABOUTME: Values are read from the manager on every scrape
package metrics

import (
	"github.com/Sendspin/sendspin-voice/pkg/audio/backend"
	"github.com/Sendspin/sendspin-voice/pkg/audio/ducking"
	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every metric name
const Namespace = "voice"

// Source is the part of voice.Manager the collector reads
type Source interface {
	BackendName() string
	ActivePlaybackCount() int
	ActiveRecordingCount() int
	BufferHealth() backend.BufferHealth
	Latency() backend.Latency
	DuckingState() []ducking.StreamInfo
}

// Collector implements prometheus.Collector over a Source
type Collector struct {
	src Source

	activeStreams *prometheus.Desc
	bufferFill    *prometheus.Desc
	latency       *prometheus.Desc
	underruns     *prometheus.Desc
	overruns      *prometheus.Desc
	ducked        *prometheus.Desc
}

// NewCollector creates a collector for src
func NewCollector(src Source) *Collector {
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(Namespace, "", name), help, append([]string{"backend"}, labels...), nil)
	}

	return &Collector{
		src:           src,
		activeStreams: desc("active_streams", "Streams currently tracked by the manager", "direction"),
		bufferFill:    desc("buffer_fill_ratio", "Average output buffer fill across playback streams"),
		latency:       desc("latency_seconds", "Estimated audio latency", "direction"),
		underruns:     desc("underruns_total", "Output underruns across all streams"),
		overruns:      desc("overruns_total", "Buffer overruns across all streams"),
		ducked:        desc("ducked_streams", "Playback streams currently attenuated by ducking"),
	}
}

// Describe implements prometheus.Collector
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.activeStreams
	ch <- c.bufferFill
	ch <- c.latency
	ch <- c.underruns
	ch <- c.overruns
	ch <- c.ducked
}

// Collect implements prometheus.Collector
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	name := c.src.BackendName()
	if name == "" {
		name = "none"
	}
	health := c.src.BufferHealth()
	lat := c.src.Latency()

	ducked := 0
	for _, s := range c.src.DuckingState() {
		if s.Ducked {
			ducked++
		}
	}

	ch <- prometheus.MustNewConstMetric(c.activeStreams, prometheus.GaugeValue, float64(c.src.ActivePlaybackCount()), name, "playback")
	ch <- prometheus.MustNewConstMetric(c.activeStreams, prometheus.GaugeValue, float64(c.src.ActiveRecordingCount()), name, "recording")
	ch <- prometheus.MustNewConstMetric(c.bufferFill, prometheus.GaugeValue, health.AverageFill, name)
	ch <- prometheus.MustNewConstMetric(c.latency, prometheus.GaugeValue, lat.OutputMs/1000, name, "output")
	ch <- prometheus.MustNewConstMetric(c.latency, prometheus.GaugeValue, lat.InputMs/1000, name, "input")
	ch <- prometheus.MustNewConstMetric(c.underruns, prometheus.CounterValue, float64(health.TotalUnderruns), name)
	ch <- prometheus.MustNewConstMetric(c.overruns, prometheus.CounterValue, float64(health.TotalOverruns), name)
	ch <- prometheus.MustNewConstMetric(c.ducked, prometheus.GaugeValue, float64(ducked), name)
}
