package monitor

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// prometheusClient implements MonitorClient on top of a dedicated registry,
// so the simulator's metrics never collide with the Go runtime's default
// registry when embedded in a larger process.
type prometheusClient struct {
	registry *prometheus.Registry

	httpRequestDuration *prometheus.SummaryVec
	dbQueryDuration     *prometheus.SummaryVec

	funcMetrics map[string]prometheus.Collector
}

func NewPrometheusClient() (*prometheusClient, error) {
	registry := prometheus.NewRegistry()

	httpRequestDuration := prometheus.NewSummaryVec(prometheus.SummaryOpts{
		Namespace:  DefaultNamespace,
		Subsystem:  string(HTTPSubservice),
		Name:       string(HTTPRequestDurationTag),
		Help:       "Duration of HTTP requests handled by a project sandbox, in seconds",
		Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
	}, []string{"status", "route", "method"})

	dbQueryDuration := prometheus.NewSummaryVec(prometheus.SummaryOpts{
		Namespace:  DefaultNamespace,
		Subsystem:  string(DBSubservice),
		Name:       "query_duration_seconds",
		Help:       "Duration of database queries, in seconds",
		Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
	}, []string{"query_type", "result"})

	if err := registry.Register(httpRequestDuration); err != nil {
		return nil, err
	}
	if err := registry.Register(dbQueryDuration); err != nil {
		return nil, err
	}

	return &prometheusClient{
		registry:            registry,
		httpRequestDuration: httpRequestDuration,
		dbQueryDuration:     dbQueryDuration,
		funcMetrics:         make(map[string]prometheus.Collector),
	}, nil
}

func (c *prometheusClient) GetMetricHTTPHandler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *prometheusClient) RegisterFunctionMetric(metricType FuncMetricType, opts FuncMetricOptions) {
	promOpts := prometheus.Opts{
		Namespace:   opts.Namespace,
		Subsystem:   opts.Subservice,
		Name:        opts.Name,
		Help:        opts.Help,
		ConstLabels: prometheus.Labels(opts.Labels),
	}

	key := opts.Namespace + "_" + opts.Subservice + "_" + opts.Name

	var collector prometheus.Collector
	switch metricType {
	case FuncGaugeType:
		collector = prometheus.NewGaugeFunc(prometheus.GaugeOpts(promOpts), opts.Function)
	case FuncCounterType:
		collector = prometheus.NewCounterFunc(prometheus.CounterOpts(promOpts), opts.Function)
	default:
		return
	}

	if err := c.registry.Register(collector); err != nil {
		return
	}
	c.funcMetrics[key] = collector
}

func (c *prometheusClient) MonitorHTTPRequestDuration(duration time.Duration, labels HTTPRequestLabels) {
	c.httpRequestDuration.WithLabelValues(labels.Status, labels.Route, labels.Method).Observe(duration.Seconds())
}

func (c *prometheusClient) MonitorDBQueryDuration(duration time.Duration, tag MetricTag, labels DBQueryLabels) {
	result := "success"
	if tag == FailureQueryDurationTag {
		result = "failure"
	}
	c.dbQueryDuration.WithLabelValues(labels.QueryType, result).Observe(duration.Seconds())
}

var _ MonitorClient = (*prometheusClient)(nil)
