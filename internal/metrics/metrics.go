package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketpay_http_requests_total",
			Help: "HTTP requests by route and status code",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ticketpay_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	paymentOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketpay_payments_total",
			Help: "Payment lifecycle events by method and outcome",
		},
		[]string{"method", "outcome"},
	)

	addressAllocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketpay_address_allocations_total",
			Help: "Derivation index allocations by result",
		},
		[]string{"result"},
	)

	chainQueries = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ticketpay_chain_query_duration_seconds",
			Help:    "Chain oracle call latency",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		},
		[]string{"operation", "status"},
	)

	ticketsIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketpay_tickets_issued_total",
			Help: "Tickets issued by source",
		},
		[]string{"source"},
	)

	cashbackSats = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketpay_cashback_sats_total",
			Help: "Cashback satoshi by stage",
		},
		[]string{"stage"},
	)
)

// Monitor records service-level metrics. A nil *Monitor is a no-op.
type Monitor struct{}

func NewMonitor() *Monitor {
	return &Monitor{}
}

func (m *Monitor) TrackRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	httpRequests.WithLabelValues(method, route, statusClass(status)).Inc()
	httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func (m *Monitor) TrackPayment(method, outcome string) {
	if m == nil {
		return
	}
	paymentOutcomes.WithLabelValues(method, outcome).Inc()
}

func (m *Monitor) TrackAllocation(result string) {
	if m == nil {
		return
	}
	addressAllocations.WithLabelValues(result).Inc()
}

func (m *Monitor) TrackChainQuery(operation string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	chainQueries.WithLabelValues(operation, status).Observe(duration.Seconds())
}

func (m *Monitor) TrackTicketIssued(source string) {
	if m == nil {
		return
	}
	ticketsIssued.WithLabelValues(source).Inc()
}

func (m *Monitor) TrackCashback(stage string, sats int64) {
	if m == nil {
		return
	}
	cashbackSats.WithLabelValues(stage).Add(float64(sats))
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
