package metrics

import (
	"time"

	"github.com/berfenger/p1sim/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "p1sim"

// Meter holds the collectors updated by the emission loop.
type Meter struct {
	Registry  *prometheus.Registry
	telegrams prometheus.Counter
	bytes     prometheus.Counter
	failures  prometheus.Counter
	setpoints *prometheus.CounterVec
	power     prometheus.Gauge
	energy    *prometheus.GaugeVec
	voltage   *prometheus.GaugeVec
	lag       prometheus.Histogram
}

func NewMeter() *Meter {
	m := &Meter{
		Registry: prometheus.NewRegistry(),
		telegrams: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "telegrams_total",
			Help:      "Telegrams written to the sink.",
		}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "telegram_bytes_total",
			Help:      "Bytes written to the sink.",
		}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_failures_total",
			Help:      "Sink open, write or flush failures.",
		}),
		setpoints: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "setpoints_total",
			Help:      "Accepted power setpoints by source.",
		}, []string{"source"}),
		power: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "power_kilowatts",
			Help:      "Simulated active power, negative when returning.",
		}),
		energy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "energy_kilowatt_hours",
			Help:      "Cumulative energy registers.",
		}, []string{"direction", "tariff"}),
		voltage: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "voltage_volts",
			Help:      "Phase voltages.",
		}, []string{"phase"}),
		lag: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "schedule_lag_seconds",
			Help:      "Delay between a telegram deadline and its emission.",
			Buckets:   []float64{.001, .005, .01, .05, .1, .25, .5, 1},
		}),
	}
	m.Registry.MustRegister(m.telegrams, m.bytes, m.failures, m.setpoints, m.power, m.energy, m.voltage, m.lag,
		collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return m
}

func (m *Meter) ObserveTelegram(reading domain.Reading, size int, lag time.Duration) {
	m.telegrams.Inc()
	m.bytes.Add(float64(size))
	m.power.Set(reading.Power)
	m.energy.WithLabelValues("delivered", "1").Set(reading.EnergyT1)
	m.energy.WithLabelValues("delivered", "2").Set(reading.EnergyT2)
	m.energy.WithLabelValues("returned", "1").Set(reading.EnergyReturnT1)
	m.energy.WithLabelValues("returned", "2").Set(reading.EnergyReturnT2)
	m.voltage.WithLabelValues("l1").Set(reading.Voltages[0])
	m.voltage.WithLabelValues("l2").Set(reading.Voltages[1])
	m.voltage.WithLabelValues("l3").Set(reading.Voltages[2])
	if lag < 0 {
		lag = 0
	}
	m.lag.Observe(lag.Seconds())
}

func (m *Meter) ObserveSinkFailure() {
	m.failures.Inc()
}

func (m *Meter) ObserveSetpoint(source string) {
	m.setpoints.WithLabelValues(source).Inc()
}
