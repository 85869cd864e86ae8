package broker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	federates    prometheus.Gauge
	grants       *prometheus.CounterVec
	publications *prometheus.CounterVec
	grantedTime  *prometheus.GaugeVec
	terminations prometheus.Counter
}

// NewMetrics registers the broker collectors with reg. A nil reg gives
// unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		federates: f.NewGauge(prometheus.GaugeOpts{
			Name: "cosim_broker_federates",
			Help: "Federates currently registered and not finalized",
		}),
		grants: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cosim_broker_time_grants_total",
			Help: "Time grants issued per federate",
		}, []string{"federate"}),
		publications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cosim_broker_publications_total",
			Help: "Values published per federate",
		}, []string{"federate"}),
		grantedTime: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cosim_broker_granted_time_seconds",
			Help: "Latest granted simulation time per federate",
		}, []string{"federate"}),
		terminations: f.NewCounter(prometheus.CounterOpts{
			Name: "cosim_broker_terminations_total",
			Help: "Federations terminated on federate error",
		}),
	}
}
