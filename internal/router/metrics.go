// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package router

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors the supervisor, health loop, and
// dispatcher update as they run. Registered against a caller-supplied
// registry so cmd/mcprouter can decide whether/where to expose /metrics.
type Metrics struct {
	EndpointsConnected prometheus.Gauge
	PingFailuresTotal  *prometheus.CounterVec
	ReconnectsTotal    *prometheus.CounterVec
	CallsTotal         *prometheus.CounterVec
}

// NewMetrics creates and registers the router's metrics against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EndpointsConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "router_endpoints_connected",
			Help: "Number of downstream endpoints currently in the Connected state.",
		}),
		PingFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "router_ping_failures_total",
			Help: "Total number of failed health-loop pings, by endpoint.",
		}, []string{"endpoint"}),
		ReconnectsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "router_reconnects_total",
			Help: "Total number of reconnect attempts, by endpoint and outcome.",
		}, []string{"endpoint", "result"}),
		CallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "router_calls_total",
			Help: "Total number of dispatched tool calls, by dispatch mode and outcome.",
		}, []string{"mode", "result"}),
	}

	reg.MustRegister(m.EndpointsConnected, m.PingFailuresTotal, m.ReconnectsTotal, m.CallsTotal)

	return m
}

// ObservePingFailure records a failed ping for an endpoint.
func (m *Metrics) ObservePingFailure(url string) {
	if m == nil {
		return
	}
	m.PingFailuresTotal.WithLabelValues(url).Inc()
}

// ObserveReconnect records the outcome of a reconnect attempt for an
// endpoint.
func (m *Metrics) ObserveReconnect(url string, success bool) {
	if m == nil {
		return
	}
	result := "failure"
	if success {
		result = "success"
	}
	m.ReconnectsTotal.WithLabelValues(url, result).Inc()
}

// ObserveCall records the outcome of a dispatched tool call.
func (m *Metrics) ObserveCall(mode string, isError bool) {
	if m == nil {
		return
	}
	result := "ok"
	if isError {
		result = "error"
	}
	m.CallsTotal.WithLabelValues(mode, result).Inc()
}

// SetEndpointsConnected sets the current connected-endpoint gauge.
func (m *Metrics) SetEndpointsConnected(n int) {
	if m == nil {
		return
	}
	m.EndpointsConnected.Set(float64(n))
}
