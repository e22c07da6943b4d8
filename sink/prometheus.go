package sink

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Gauge publishes into a Prometheus gauge. NaN is passed through, which
// Prometheus exposes as NaN.
type Gauge struct {
	gauge prometheus.Gauge
}

func NewGauge(gauge prometheus.Gauge) *Gauge {
	return &Gauge{gauge: gauge}
}

func (g *Gauge) Publish(value float64) {
	g.gauge.Set(value)
}

// GaugeVec hands out one gauge per (component, statistic) pair, all under a
// single metric family.
type GaugeVec struct {
	vec *prometheus.GaugeVec
}

func NewGaugeVec(registerer prometheus.Registerer, namespace string) (*GaugeVec, error) {
	vec := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "published_value",
			Help:      "Most recent value published by a statistics component.",
		},
		[]string{"component", "statistic"},
	)
	if err := registerer.Register(vec); err != nil {
		return nil, err
	}
	return &GaugeVec{vec: vec}, nil
}

func (gv *GaugeVec) For(component, statistic string) *Gauge {
	return NewGauge(gv.vec.WithLabelValues(component, statistic))
}
