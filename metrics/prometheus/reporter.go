// Package prometheus implements a metrics.Reporter that converts framework
// metrics to Prometheus format and exposes them over HTTP.
package prometheus

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/linchenxuan/uvbus/log"
	"github.com/linchenxuan/uvbus/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const _metricsChanSize = 65536

// ReporterConfig configures the Prometheus reporter.
type ReporterConfig struct {
	// ListenAddr is the HTTP listen address for the exposition endpoint,
	// e.g. ":2112". Empty disables the HTTP server (useful in tests).
	ListenAddr string `yaml:"listenAddr"`
	// MetricPath is the exposition path, default "/metrics".
	MetricPath string `yaml:"metricPath"`
	// ExtLabels are constant labels attached to every exported metric.
	ExtLabels map[string]string `yaml:"extLabels"`
}

// Validate checks the reporter configuration.
func (c *ReporterConfig) Validate() error {
	if c.MetricPath != "" && !strings.HasPrefix(c.MetricPath, "/") {
		return fmt.Errorf("metricPath must start with '/': %s", c.MetricPath)
	}
	return nil
}

// metricType distinguishes the wrapped Prometheus metric kinds.
type metricType int

const (
	_metricTypeCounter metricType = iota
	_metricTypeGauge
)

// promGauge wraps a Prometheus gauge with value tracking for averaging.
type promGauge struct {
	prometheus.Gauge
	value float64
	cnt   int
}

func (p *promGauge) merge(rc *metrics.Record) error {
	switch rc.Metrics().Policy() {
	case metrics.Policy_Set, metrics.Policy_Max, metrics.Policy_Min:
		p.Set(float64(rc.Value()))
	case metrics.Policy_Sum:
		p.Add(float64(rc.Value()))
	case metrics.Policy_Avg, metrics.Policy_Stopwatch:
		v, c := rc.RawData()
		p.value += float64(v)
		p.cnt += c
		if p.cnt <= 0 {
			return fmt.Errorf("metrics(%s) count invalid", rc.Metrics().Name())
		}
		p.Set(p.value / float64(p.cnt))
	default:
		return fmt.Errorf("metrics(%s) policy invalid", rc.Metrics().Name())
	}
	return nil
}

// metricWrapper stores a Prometheus metric along with its kind.
type metricWrapper struct {
	m  prometheus.Metric
	mt metricType
}

func (m *metricWrapper) merge(rc *metrics.Record) {
	switch m.mt {
	case _metricTypeGauge:
		if g, ok := m.m.(*promGauge); ok {
			if err := g.merge(rc); err != nil {
				log.Error().Err(err).Msg("prometheus merge")
			}
			return
		}
	case _metricTypeCounter:
		if c, ok := m.m.(prometheus.Counter); ok {
			c.Add(float64(rc.Value()))
			return
		}
	}
	log.Error().Str("promtype", fmt.Sprintf("%T", m.m)).
		Int("metrictype", int(m.mt)).Msg("prometheus merge failed")
}

// Reporter aggregates framework metric records and exports them through the
// Prometheus client library. Records arrive over a buffered channel so the
// hot path never blocks on exposition.
type Reporter struct {
	cfg         *ReporterConfig
	promSvr     *http.Server
	metricsChan chan metrics.Record
	metrics     map[string]*metricWrapper
	ctx         context.Context
	cancel      context.CancelFunc
}

// NewReporter creates and starts a Prometheus reporter.
func NewReporter(cfg *ReporterConfig) (*Reporter, error) {
	if cfg == nil {
		cfg = &ReporterConfig{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.MetricPath == "" {
		cfg.MetricPath = "/metrics"
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Reporter{
		cfg:         cfg,
		metricsChan: make(chan metrics.Record, _metricsChanSize),
		metrics:     map[string]*metricWrapper{},
		ctx:         ctx,
		cancel:      cancel,
	}
	p.start()
	return p, nil
}

// Report queues a record for aggregation. Never blocks; records are dropped
// with a log line when the channel is full.
func (x *Reporter) Report(r metrics.Record) {
	select {
	case x.metricsChan <- r:
	default:
		log.Error().Msg("metrics chan full")
	}
}

// Stop shuts down the aggregation goroutine and the HTTP server.
func (x *Reporter) Stop() {
	x.cancel()
	if x.promSvr != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = x.promSvr.Shutdown(shutdownCtx)
	}
}

func (x *Reporter) start() {
	go x.aggregate()
	if x.cfg.ListenAddr != "" {
		mux := http.NewServeMux()
		mux.Handle(x.cfg.MetricPath, promhttp.Handler())
		x.promSvr = &http.Server{Addr: x.cfg.ListenAddr, Handler: mux}
		go func() {
			if err := x.promSvr.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("prometheus http server")
			}
		}()
	}
}

func (x *Reporter) aggregate() {
	for {
		select {
		case <-x.ctx.Done():
			return
		case r := <-x.metricsChan:
			x.mergeRecord(&r)
		}
	}
}

func (x *Reporter) mergeRecord(rc *metrics.Record) {
	key := recordKey(rc)
	if w, ok := x.metrics[key]; ok {
		w.merge(rc)
		return
	}
	x.metrics[key] = x.newWrapper(rc)
}

func (x *Reporter) newWrapper(rc *metrics.Record) *metricWrapper {
	subsystem := sanitize(rc.Metrics().Group())
	name := sanitize(rc.Metrics().Name())
	constLabels := make(map[string]string, len(rc.Dimensions())+len(x.cfg.ExtLabels))
	for k, v := range x.cfg.ExtLabels {
		constLabels[k] = v
	}
	for k, v := range rc.Dimensions() {
		constLabels[k] = v
	}

	if rc.Metrics().Policy() == metrics.Policy_Sum && isCounterLike(rc.Metrics().Name()) {
		c := promauto.NewCounter(prometheus.CounterOpts{
			Subsystem:   subsystem,
			Name:        name,
			ConstLabels: constLabels,
		})
		c.Add(float64(rc.Value()))
		return &metricWrapper{m: c, mt: _metricTypeCounter}
	}

	g := &promGauge{
		Gauge: promauto.NewGauge(prometheus.GaugeOpts{
			Subsystem:   subsystem,
			Name:        name,
			ConstLabels: constLabels,
		}),
	}
	_ = g.merge(rc)
	return &metricWrapper{m: g, mt: _metricTypeGauge}
}

// recordKey identifies one exported series: group, name and sorted dims.
func recordKey(rc *metrics.Record) string {
	var sb strings.Builder
	sb.WriteString(rc.Metrics().Group())
	sb.WriteByte('/')
	sb.WriteString(rc.Metrics().Name())
	dims := rc.Dimensions()
	keys := make([]string, 0, len(dims))
	for k := range dims {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		sb.WriteByte('/')
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(dims[k])
	}
	return sb.String()
}

func sanitize(s string) string {
	return strings.ReplaceAll(s, ".", "_")
}

// isCounterLike follows the Prometheus naming convention: cumulative series
// end in _total.
func isCounterLike(name string) bool {
	return strings.HasSuffix(name, "_total")
}
