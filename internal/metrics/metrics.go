package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "intervue"

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests received",
	}, []string{"method", "route", "status"})

	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	httpInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "http_in_flight_requests",
		Help:      "Current number of in-flight HTTP requests",
	})

	interviewTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "interview_transitions_total",
		Help:      "Interview status transitions applied, by edge",
	}, []string{"from", "to"})

	feedbackSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "feedback_submitted_total",
		Help:      "Feedback records created, by evaluator type",
	}, []string{"evaluator_type"})

	signalingPeers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "signaling_connected_peers",
		Help:      "Peers currently attached to the signaling relay",
	})

	signalingMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "signaling_messages_total",
		Help:      "Signaling messages relayed, by type and outcome",
	}, []string{"type", "outcome"})

	callSessions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "call_sessions_total",
		Help:      "Call sessions finished, by role and final state",
	}, []string{"role", "outcome"})
)

// ObserveTransition counts an applied interview status change.
func ObserveTransition(from, to string) {
	interviewTransitions.WithLabelValues(from, to).Inc()
}

func ObserveFeedback(evaluatorType string) {
	feedbackSubmitted.WithLabelValues(evaluatorType).Inc()
}

func PeerAttached() { signalingPeers.Inc() }
func PeerDetached() { signalingPeers.Dec() }

// ObserveSignal counts one relayed message. outcome is "ok" or an error code.
func ObserveSignal(msgType, outcome string) {
	signalingMessages.WithLabelValues(msgType, outcome).Inc()
}

func ObserveCall(role, outcome string) {
	callSessions.WithLabelValues(role, outcome).Inc()
}

type responseRecorder struct {
	http.ResponseWriter
	status int
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack lets the websocket upgrader take over the connection.
func (r *responseRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := r.ResponseWriter.(http.Hijacker); ok {
		r.status = http.StatusSwitchingProtocols
		return h.Hijack()
	}
	return nil, nil, fmt.Errorf("metrics: underlying ResponseWriter does not support hijacking")
}

// Middleware records request metrics labelled by the matched chi route
// pattern, keeping interview ids out of the label set.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := strconv.Itoa(rec.status)
		httpRequests.WithLabelValues(r.Method, route, status).Inc()
		httpLatency.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
	})
}

// Handler exposes the default Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
