package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Detector-side counters. The detector loop is the only writer; handlers on
// the optional status listener only read them through the prometheus registry.
var (
	FramesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tt2check_frames_processed_total",
		Help: "Frames read from the video source and fed through the detector.",
	})

	Reconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tt2check_stream_reconnects_total",
		Help: "Successful stream reconnections after a read failure.",
	})

	EventsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tt2check_events_recorded_total",
		Help: "Launch outcomes appended to the event log, by outcome.",
	}, []string{"outcome"})

	EventsSuppressed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tt2check_events_suppressed_total",
		Help: "Event writes suppressed by the minimum-interval dedup rule.",
	})

	EventsAmended = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tt2check_events_amended_total",
		Help: "Rollback rows rewritten to success by the amend rule.",
	})
)

// MetricsHandler returns the HTTP handler serving the default registry.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
