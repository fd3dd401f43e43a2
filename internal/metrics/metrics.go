package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	EmailsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailgw_emails_total",
			Help: "Email lifecycle counter by stage",
		},
		[]string{"stage"}, // queued|success|failed|rejected
	)

	CreditsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailgw_credits_total",
			Help: "Credit ledger operations",
		},
		[]string{"op"}, // deduct|refund|reset
	)

	AuthorizeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailgw_authorize_total",
			Help: "Send authorization outcomes",
		},
		[]string{"result"},
	)

	DispatchQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mailgw_dispatch_queue_depth",
			Help: "Tasks waiting in the in-process dispatch queue",
		},
	)
)

// MustRegister registers all collectors once per registerer.
func MustRegister(r prometheus.Registerer) {
	for _, c := range []prometheus.Collector{EmailsTotal, CreditsTotal, AuthorizeTotal, DispatchQueueDepth} {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			panic(err)
		}
	}
}
