// SPDX-License-Identifier: MIT
//
// Copyright © 2018 Kent Gibson <warthog618@gmail.com>.

// Package metrics provides Prometheus collectors for the modem and the queue
// drain.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/warthog618/sim7080/at"
	"github.com/warthog618/sim7080/sim7080"
)

const (
	metricPrefix = "sim7080_"

	resultSuccess = "success"
	resultError   = "error"
	resultSkipped = "skipped"
)

// Metrics collects modem and queue drain metrics.
//
// Metrics implements at.Observer so it can be attached to the AT modem.
type Metrics struct {
	commands        *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec
	level           prometheus.Gauge
	publishes       *prometheus.CounterVec
	queueDepth      prometheus.Gauge
}

// New creates the collectors and registers them with the registerer.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		commands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "at_commands_total",
				Help: "Total AT exchanges by kind and status",
			},
			[]string{"kind", "status"},
		),
		commandDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "at_command_duration_seconds",
				Help:    "AT exchange duration in seconds",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 20},
			},
			[]string{"kind"},
		),
		level: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "modem_level",
				Help: "Modem connectivity level, 1 powered off to 4 mqtt connected",
			},
		),
		publishes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "mqtt_publish_total",
				Help: "Total MQTT publishes by result",
			},
			[]string{"result"},
		),
		queueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "queue_depth",
				Help: "Payloads waiting in the outbound queue",
			},
		),
	}
	for _, c := range []prometheus.Collector{
		m.commands,
		m.commandDuration,
		m.level,
		m.publishes,
		m.queueDepth,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveCommand records the outcome of an AT exchange.
func (m *Metrics) ObserveCommand(kind at.Kind, status at.Status, d time.Duration) {
	m.commands.WithLabelValues(kind.String(), status.String()).Inc()
	m.commandDuration.WithLabelValues(kind.String()).Observe(d.Seconds())
}

// ObserveLevel records the modem connectivity level.
func (m *Metrics) ObserveLevel(l sim7080.Level) {
	m.level.Set(float64(l))
}

// ObservePublish records the result of a publish.
func (m *Metrics) ObservePublish(err error, skipped bool) {
	switch {
	case skipped:
		m.publishes.WithLabelValues(resultSkipped).Inc()
	case err != nil:
		m.publishes.WithLabelValues(resultError).Inc()
	default:
		m.publishes.WithLabelValues(resultSuccess).Inc()
	}
}

// ObserveQueueDepth records the length of the outbound queue.
func (m *Metrics) ObserveQueueDepth(n int64) {
	m.queueDepth.Set(float64(n))
}
