// Package monitor exposes a small Prometheus-backed metrics surface for the
// simulator: HTTP request duration, DB connection pool stats and DB query
// duration. TSS/Circle/Anchor/Business-platform metrics from the upstream
// monitor package have no home in a single-process sandbox and are dropped.
package monitor

import (
	"fmt"
	"net/http"
	"time"
)

const DefaultNamespace = "mpesa_sim"

// Subservice groups related metrics under a namespace/subservice pair.
type Subservice string

const (
	DBSubservice   Subservice = "db"
	HTTPSubservice Subservice = "http"
)

// MetricTag identifies one of the pre-registered metrics below.
type MetricTag string

const (
	HTTPRequestDurationTag MetricTag = "request_duration_seconds"

	SuccessfulQueryDurationTag MetricTag = "successful_queries_duration_seconds"
	FailureQueryDurationTag    MetricTag = "failure_queries_duration_seconds"

	DBMaxOpenConnectionsTag       MetricTag = "max_open_connections"
	DBInUseConnectionsTag         MetricTag = "in_use_connections"
	DBIdleConnectionsTag          MetricTag = "idle_connections"
	DBWaitCountTotalTag           MetricTag = "wait_count_total"
	DBWaitDurationSecondsTotalTag MetricTag = "wait_duration_seconds_total"
	DBMaxIdleClosedTotalTag       MetricTag = "max_idle_closed_total"
	DBMaxIdleTimeClosedTotalTag   MetricTag = "max_idle_time_closed_total"
	DBMaxLifetimeClosedTotalTag   MetricTag = "max_lifetime_closed_total"
)

// FuncMetricType distinguishes gauges from counters for RegisterFunctionMetric.
type FuncMetricType string

const (
	FuncGaugeType   FuncMetricType = "gauge"
	FuncCounterType FuncMetricType = "counter"
)

// FuncMetricOptions describes a metric whose value is pulled from Function on
// every scrape, used for connection-pool stats that live in *sql.DB.
type FuncMetricOptions struct {
	Namespace  string
	Subservice string
	Name       string
	Help       string
	Labels     map[string]string
	Function   func() float64
}

// HTTPRequestLabels labels one observation of HTTP request duration.
type HTTPRequestLabels struct {
	Status string
	Route  string
	Method string
}

// DBQueryLabels labels one observation of DB query duration.
type DBQueryLabels struct {
	QueryType string
}

// MonitorServiceInterface is the seam the rest of the simulator depends on,
// so tests can substitute a no-op implementation without pulling in
// Prometheus.
//
//go:generate mockery --name=MonitorServiceInterface --case=underscore --structname=MockMonitorService
type MonitorServiceInterface interface {
	Start() error
	GetMetricHTTPHandler() (http.Handler, error)
	RegisterFunctionMetric(metricType FuncMetricType, opts FuncMetricOptions)
	MonitorHTTPRequestDuration(duration time.Duration, labels HTTPRequestLabels) error
	MonitorDBQueryDuration(duration time.Duration, tag MetricTag, labels DBQueryLabels) error
}

var _ MonitorServiceInterface = (*MonitorService)(nil)

// MonitorService adapts MonitorServiceInterface onto a concrete client,
// mirroring the upstream MonitorService-over-MonitorClient split so the
// client backend can be swapped in tests.
type MonitorService struct {
	Client MonitorClient
}

func (m *MonitorService) Start() error {
	if m.Client != nil {
		return fmt.Errorf("monitor service already started")
	}
	client, err := NewPrometheusClient()
	if err != nil {
		return fmt.Errorf("creating prometheus client: %w", err)
	}
	m.Client = client
	return nil
}

func (m *MonitorService) GetMetricHTTPHandler() (http.Handler, error) {
	if m.Client == nil {
		return nil, fmt.Errorf("monitor service not started")
	}
	return m.Client.GetMetricHTTPHandler(), nil
}

func (m *MonitorService) RegisterFunctionMetric(metricType FuncMetricType, opts FuncMetricOptions) {
	if m.Client == nil {
		return
	}
	m.Client.RegisterFunctionMetric(metricType, opts)
}

func (m *MonitorService) MonitorHTTPRequestDuration(duration time.Duration, labels HTTPRequestLabels) error {
	if m.Client == nil {
		return fmt.Errorf("monitor service not started")
	}
	m.Client.MonitorHTTPRequestDuration(duration, labels)
	return nil
}

func (m *MonitorService) MonitorDBQueryDuration(duration time.Duration, tag MetricTag, labels DBQueryLabels) error {
	if m.Client == nil {
		return fmt.Errorf("monitor service not started")
	}
	m.Client.MonitorDBQueryDuration(duration, tag, labels)
	return nil
}

// MonitorClient is the low-level metrics backend. Prometheus is the only
// implementation shipped; the interface exists so tests don't need a
// registry.
type MonitorClient interface {
	GetMetricHTTPHandler() http.Handler
	RegisterFunctionMetric(metricType FuncMetricType, opts FuncMetricOptions)
	MonitorHTTPRequestDuration(duration time.Duration, labels HTTPRequestLabels)
	MonitorDBQueryDuration(duration time.Duration, tag MetricTag, labels DBQueryLabels)
}
