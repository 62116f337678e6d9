package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/amoylab/osrf/internal/common/config"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the prometheus collectors of one process. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry   *prometheus.Registry
	namespace  string
	httpReqCnt *prometheus.CounterVec
	httpDur    *prometheus.HistogramVec
	httpInfl   *prometheus.GaugeVec
	clientCnt  *prometheus.CounterVec
	clientDur  *prometheus.HistogramVec
	clientInfl *prometheus.GaugeVec
	callCnt    *prometheus.CounterVec
	callDur    *prometheus.HistogramVec
	callInfl   *prometheus.GaugeVec
	busMsgs    *prometheus.CounterVec
	sessions   *prometheus.GaugeVec
}

func New(cfg config.MetricsConfig) *Metrics {
	ns := cfg.Namespace
	r := prometheus.NewRegistry()
	r.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	r.MustRegister(collectors.NewGoCollector())

	httpReqCnt := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "http_requests_total"}, []string{"method", "route", "status"})
	httpDur := prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: ns, Name: "http_request_duration_seconds", Buckets: cfg.Buckets}, []string{"method", "route", "status"})
	httpInfl := prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: ns, Name: "http_requests_inflight"}, []string{"route"})
	r.MustRegister(httpReqCnt, httpDur, httpInfl)

	clientCnt := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "client_requests_total"}, []string{"service", "method", "outcome"})
	clientDur := prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: ns, Name: "client_request_duration_seconds", Buckets: cfg.Buckets}, []string{"service", "method", "outcome"})
	clientInfl := prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: ns, Name: "client_requests_inflight"}, []string{"service"})
	r.MustRegister(clientCnt, clientDur, clientInfl)

	callCnt := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "method_calls_total"}, []string{"method", "status"})
	callDur := prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: ns, Name: "method_call_duration_seconds", Buckets: cfg.Buckets}, []string{"method", "status"})
	callInfl := prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: ns, Name: "method_calls_inflight"}, []string{"method"})
	r.MustRegister(callCnt, callDur, callInfl)

	busMsgs := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "bus_messages_total"}, []string{"direction", "type"})
	sessions := prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: ns, Name: "sessions_active"}, []string{"role"})
	r.MustRegister(busMsgs, sessions)

	return &Metrics{
		registry:   r,
		namespace:  ns,
		httpReqCnt: httpReqCnt,
		httpDur:    httpDur,
		httpInfl:   httpInfl,
		clientCnt:  clientCnt,
		clientDur:  clientDur,
		clientInfl: clientInfl,
		callCnt:    callCnt,
		callDur:    callDur,
		callInfl:   callInfl,
		busMsgs:    busMsgs,
		sessions:   sessions,
	}
}

func (m *Metrics) ClientReqStart(service string) {
	if m == nil {
		return
	}
	m.clientInfl.WithLabelValues(service).Inc()
}

// ClientReqDone closes a request opened with ClientReqStart. outcome is
// "complete" or "abandoned".
func (m *Metrics) ClientReqDone(service, method, outcome string, since time.Time) {
	if m == nil {
		return
	}
	m.clientCnt.WithLabelValues(service, method, outcome).Inc()
	m.clientDur.WithLabelValues(service, method, outcome).Observe(time.Since(since).Seconds())
	m.clientInfl.WithLabelValues(service).Dec()
}

func (m *Metrics) CallStart(method string) {
	if m == nil {
		return
	}
	m.callInfl.WithLabelValues(method).Inc()
}

func (m *Metrics) CallDone(method string, status int, since time.Time) {
	if m == nil {
		return
	}
	code := strconv.Itoa(status)
	m.callCnt.WithLabelValues(method, code).Inc()
	m.callDur.WithLabelValues(method, code).Observe(time.Since(since).Seconds())
	m.callInfl.WithLabelValues(method).Dec()
}

// BusMessage counts one protocol message; direction is "in" or "out"
func (m *Metrics) BusMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.busMsgs.WithLabelValues(direction, msgType).Inc()
}

// SessionOpened and SessionClosed track registered conversations per role
func (m *Metrics) SessionOpened(role string) {
	if m == nil {
		return
	}
	m.sessions.WithLabelValues(role).Inc()
}

func (m *Metrics) SessionClosed(role string) {
	if m == nil {
		return
	}
	m.sessions.WithLabelValues(role).Dec()
}

func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		m.httpInfl.WithLabelValues(route).Inc()
		start := time.Now()
		c.Next()
		status := strconv.Itoa(c.Writer.Status())
		m.httpReqCnt.WithLabelValues(c.Request.Method, route, status).Inc()
		m.httpDur.WithLabelValues(c.Request.Method, route, status).Observe(time.Since(start).Seconds())
		m.httpInfl.WithLabelValues(route).Dec()
	}
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests and extra collectors
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}
