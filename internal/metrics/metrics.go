// Package metrics holds the prometheus collectors of the dynamic data
// source engine. They are registered with the default registry.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const (
	MetricActivations = "activations_total"
	MetricDisposals   = "disposals_total"
	MetricValidations = "validations_total"
	MetricActiveUnits = "active_units"

	namespace = "dynamic_datasource"
)

// Result label values.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

var CounterActivations = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      MetricActivations,
		Help:      "Number of data source activations by result.",
	},
	[]string{"result"},
)

var CounterDisposals = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      MetricDisposals,
		Help:      "Number of retired units disposed by result.",
	},
	[]string{"result"},
)

var CounterValidations = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      MetricValidations,
		Help:      "Number of configuration validations by result.",
	},
	[]string{"result"},
)

var GaugeActiveUnits = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      MetricActiveUnits,
		Help:      "Number of units that are built and not yet disposed.",
	},
)

func init() {
	prometheus.MustRegister(CounterActivations)
	prometheus.MustRegister(CounterDisposals)
	prometheus.MustRegister(CounterValidations)
	prometheus.MustRegister(GaugeActiveUnits)
}

// Result returns the result label for err.
func Result(err error) string {
	if err != nil {
		return ResultFailure
	}
	return ResultSuccess
}
