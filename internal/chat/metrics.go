package chat

import "github.com/prometheus/client_golang/prometheus"

var (
	ConnectedClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_connected_clients",
		Help: "Number of sessions currently in the roster",
	})

	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_messages_total",
		Help: "Total inbound lines processed by command tag",
	}, []string{"tag"})

	DispatchDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chat_dispatch_seconds",
		Help:    "Time to route one inbound line, including fan-out writes",
		Buckets: prometheus.DefBuckets,
	}, []string{"tag"})

	WriteFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_write_failures_total",
		Help: "Outbound writes that failed and closed the recipient",
	})

	AcceptErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_accept_errors_total",
		Help: "Transient errors returned by the listener",
	})
)

func init() {
	prometheus.MustRegister(ConnectedClients)
	prometheus.MustRegister(MessagesTotal)
	prometheus.MustRegister(DispatchDuration)
	prometheus.MustRegister(WriteFailuresTotal)
	prometheus.MustRegister(AcceptErrorsTotal)
}
