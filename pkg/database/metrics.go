package database

import (
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// poolMetric maps one pgxpool statistic onto a Prometheus series.
type poolMetric struct {
	name  string
	help  string
	kind  prometheus.ValueType
	value func(*pgxpool.Stat) float64
}

var poolMetrics = []poolMetric{
	{"db_pool_acquired_connections", "Connections currently checked out of the pool.", prometheus.GaugeValue,
		func(s *pgxpool.Stat) float64 { return float64(s.AcquiredConns()) }},
	{"db_pool_idle_connections", "Connections currently idle in the pool.", prometheus.GaugeValue,
		func(s *pgxpool.Stat) float64 { return float64(s.IdleConns()) }},
	{"db_pool_total_connections", "Connections currently open.", prometheus.GaugeValue,
		func(s *pgxpool.Stat) float64 { return float64(s.TotalConns()) }},
	{"db_pool_max_connections", "Configured connection ceiling.", prometheus.GaugeValue,
		func(s *pgxpool.Stat) float64 { return float64(s.MaxConns()) }},
	{"db_pool_constructing_connections", "Connections being established.", prometheus.GaugeValue,
		func(s *pgxpool.Stat) float64 { return float64(s.ConstructingConns()) }},
	{"db_pool_acquire_count_total", "Successful connection acquires.", prometheus.CounterValue,
		func(s *pgxpool.Stat) float64 { return float64(s.AcquireCount()) }},
	{"db_pool_acquire_duration_seconds_total", "Cumulative time spent waiting to acquire a connection.", prometheus.CounterValue,
		func(s *pgxpool.Stat) float64 { return s.AcquireDuration().Seconds() }},
	{"db_pool_canceled_acquire_count_total", "Acquires abandoned because the context ended.", prometheus.CounterValue,
		func(s *pgxpool.Stat) float64 { return float64(s.CanceledAcquireCount()) }},
	{"db_pool_empty_acquire_count_total", "Acquires that had to wait for a free connection.", prometheus.CounterValue,
		func(s *pgxpool.Stat) float64 { return float64(s.EmptyAcquireCount()) }},
	{"db_pool_new_connections_total", "Connections opened since start.", prometheus.CounterValue,
		func(s *pgxpool.Stat) float64 { return float64(s.NewConnsCount()) }},
	{"db_pool_max_lifetime_destroy_total", "Connections closed on reaching their max lifetime.", prometheus.CounterValue,
		func(s *pgxpool.Stat) float64 { return float64(s.MaxLifetimeDestroyCount()) }},
	{"db_pool_max_idle_destroy_total", "Connections closed after idling too long.", prometheus.CounterValue,
		func(s *pgxpool.Stat) float64 { return float64(s.MaxIdleDestroyCount()) }},
}

// PoolStatsCollector exports pgxpool statistics on every scrape.
type PoolStatsCollector struct {
	pool    *pgxpool.Pool
	service string
	descs   []*prometheus.Desc
}

// NewPoolStatsCollector creates a collector labelled with the owning service.
func NewPoolStatsCollector(pool *pgxpool.Pool, service string) *PoolStatsCollector {
	c := &PoolStatsCollector{pool: pool, service: service}
	for _, m := range poolMetrics {
		c.descs = append(c.descs, prometheus.NewDesc(m.name, m.help, []string{"service"}, nil))
	}
	return c
}

func (c *PoolStatsCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.descs {
		ch <- d
	}
}

func (c *PoolStatsCollector) Collect(ch chan<- prometheus.Metric) {
	stat := c.pool.Stat()
	for i, m := range poolMetrics {
		ch <- prometheus.MustNewConstMetric(c.descs[i], m.kind, m.value(stat), c.service)
	}
}

// RegisterPoolMetrics registers a pool collector with the default registry.
// Registering the same service twice is a no-op.
func RegisterPoolMetrics(pool *pgxpool.Pool, service string) {
	err := prometheus.Register(NewPoolStatsCollector(pool, service))
	var already prometheus.AlreadyRegisteredError
	if err != nil && !errors.As(err, &already) {
		panic(err)
	}
}
