package device

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

type deviceMetrics struct {
	allocated prometheus.Gauge
	launches  *prometheus.CounterVec
	errors    *prometheus.CounterVec
}

func newDeviceMetrics(reg prometheus.Registerer, name string) *deviceMetrics {
	labels := prometheus.Labels{"device": name}
	return &deviceMetrics{
		allocated: register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "crml",
			Subsystem:   "device",
			Name:        "allocated_bytes",
			Help:        "Bytes of device memory currently allocated.",
			ConstLabels: labels,
		})),
		launches: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "crml",
			Name:        "kernel_launches_total",
			Help:        "Kernel launches accepted by the device.",
			ConstLabels: labels,
		}, []string{"kernel"})),
		errors: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "crml",
			Name:        "kernel_errors_total",
			Help:        "Kernel launches rejected or failed during execution.",
			ConstLabels: labels,
		}, []string{"kernel"})),
	}
}

// register reuses an identical collector already registered by another
// device with the same name.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
	}
	return c
}
