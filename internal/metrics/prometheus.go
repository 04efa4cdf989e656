package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the relay.
// Every method is safe on a nil receiver so components can run without metrics.
type Metrics struct {
	// Live session metrics
	SessionsStarted      prometheus.Counter
	SessionStartFailures *prometheus.CounterVec
	ActiveSessions       prometheus.Gauge
	Notices              *prometheus.CounterVec

	// Audio metrics
	FramesSent     prometheus.Counter
	FramesDropped  prometheus.Counter
	FramesFailed   prometheus.Counter
	ChunksPlayed   prometheus.Counter
	Interruptions  prometheus.Counter
	TranscriptTurn *prometheus.CounterVec

	// Prompt metrics
	PromptRequests *prometheus.CounterVec
	PromptDuration *prometheus.HistogramVec

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates all metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SessionsStarted: f.NewCounter(prometheus.CounterOpts{
			Name: "voxrelay_sessions_started_total",
			Help: "Total number of live sessions that reached the active state",
		}),
		SessionStartFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voxrelay_session_start_failures_total",
			Help: "Total number of live session starts that failed, by stage",
		}, []string{"stage"}),
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "voxrelay_active_sessions",
			Help: "Current number of active live sessions",
		}),
		Notices: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voxrelay_notices_total",
			Help: "Total number of system notices shown to users, by kind",
		}, []string{"kind"}),

		FramesSent: f.NewCounter(prometheus.CounterOpts{
			Name: "voxrelay_frames_sent_total",
			Help: "Total number of microphone frames forwarded to the model",
		}),
		FramesDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "voxrelay_frames_dropped_total",
			Help: "Total number of microphone frames dropped with no session attached",
		}),
		FramesFailed: f.NewCounter(prometheus.CounterOpts{
			Name: "voxrelay_frames_failed_total",
			Help: "Total number of microphone frames the live session rejected",
		}),
		ChunksPlayed: f.NewCounter(prometheus.CounterOpts{
			Name: "voxrelay_playback_chunks_total",
			Help: "Total number of model audio chunks scheduled for playback",
		}),
		Interruptions: f.NewCounter(prometheus.CounterOpts{
			Name: "voxrelay_interruptions_total",
			Help: "Total number of barge-in interruptions",
		}),
		TranscriptTurn: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voxrelay_transcript_messages_total",
			Help: "Total number of transcript messages finalized, by role",
		}, []string{"role"}),

		PromptRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voxrelay_prompt_requests_total",
			Help: "Total number of text prompt requests, by mode and outcome",
		}, []string{"mode", "outcome"}),
		PromptDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voxrelay_prompt_duration_seconds",
			Help:    "Duration of text prompt requests",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 9), // 250ms to ~1 minute
		}, []string{"mode"}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voxrelay_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status_code"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voxrelay_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.SessionsStarted.Inc()
	m.ActiveSessions.Inc()
}

func (m *Metrics) SessionEnded() {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
}

func (m *Metrics) StartFailed(stage string) {
	if m == nil {
		return
	}
	m.SessionStartFailures.WithLabelValues(stage).Inc()
}

func (m *Metrics) Notice(kind string) {
	if m == nil {
		return
	}
	m.Notices.WithLabelValues(kind).Inc()
}

func (m *Metrics) FrameSent() {
	if m == nil {
		return
	}
	m.FramesSent.Inc()
}

func (m *Metrics) FrameDropped() {
	if m == nil {
		return
	}
	m.FramesDropped.Inc()
}

func (m *Metrics) FrameFailed() {
	if m == nil {
		return
	}
	m.FramesFailed.Inc()
}

func (m *Metrics) ChunkPlayed() {
	if m == nil {
		return
	}
	m.ChunksPlayed.Inc()
}

func (m *Metrics) Interrupted() {
	if m == nil {
		return
	}
	m.Interruptions.Inc()
}

func (m *Metrics) TranscriptMessage(role string) {
	if m == nil {
		return
	}
	m.TranscriptTurn.WithLabelValues(role).Inc()
}

// ObservePrompt records one prompt request.
func (m *Metrics) ObservePrompt(mode, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.PromptRequests.WithLabelValues(mode, outcome).Inc()
	m.PromptDuration.WithLabelValues(mode).Observe(d.Seconds())
}

// GinMiddleware records request counts and latency per matched route.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
