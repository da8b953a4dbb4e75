package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "price"

// Resultados possíveis de um fetch na fonte externa
const (
	FetchOK          = "ok"
	FetchTimeout     = "timeout"
	FetchUnavailable = "unavailable"
)

// Metrics agrupa os coletores Prometheus do price-service
type Metrics struct {
	WSConnections   prometheus.Gauge
	WSMessagesSent  prometheus.Counter
	WSSendFailures  prometheus.Counter
	FetchResults    *prometheus.CounterVec // por resultado
	RefreshDuration prometheus.Histogram
	SinkErrors      *prometheus.CounterVec // por sink
}

// New cria e registra as métricas no registry informado
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		WSConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_connections",
			Help:      "Clientes WebSocket conectados",
		}),
		WSMessagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_sent_total",
			Help:      "Total de mensagens WS enviadas",
		}),
		WSSendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_send_failures_total",
			Help:      "Envios WS que falharam e removeram o cliente",
		}),
		FetchResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_total",
			Help:      "Chamadas à fonte de preços por resultado",
		}, []string{"result"}),
		RefreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refresh_duration_seconds",
			Help:      "Duração de um ciclo de refresh (fetch + apply + broadcast)",
			Buckets:   prometheus.DefBuckets,
		}),
		SinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_errors_total",
			Help:      "Erros ao publicar nos sinks",
		}, []string{"sink"}),
	}

	reg.MustRegister(m.WSConnections, m.WSMessagesSent, m.WSSendFailures, m.FetchResults, m.RefreshDuration, m.SinkErrors)
	return m
}

// NewNop cria métricas não registradas, útil em testes e ferramentas
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
