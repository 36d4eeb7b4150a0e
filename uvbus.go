// Package uvbus assembles the framework: an event loop, logging, metrics
// and factories for rpc servers, clients, publishers and subscribers that
// share the application's loop.
package uvbus

import (
	"github.com/linchenxuan/uvbus/log"
	"github.com/linchenxuan/uvbus/loop"
	"github.com/linchenxuan/uvbus/metrics"
	"github.com/linchenxuan/uvbus/metrics/prometheus"
	"github.com/linchenxuan/uvbus/rpc"
)

// UVBus is the core application struct, holding the event loop and the
// shared framework components.
type UVBus struct {
	Logger log.Logger
	Loop   *loop.Loop

	promReporter *prometheus.Reporter
}

// New creates an application instance with default configuration: a
// console logger at debug level and a fresh event loop.
func New() (*UVBus, error) {
	logCfg := &log.LogCfg{
		ConsoleAppender:   true,
		LogLevel:          log.DebugLevel,
		EnabledCallerInfo: true,
		CallerSkip:        1,
	}
	logger := log.NewLogger(logCfg)
	log.SetDefaultLogger(logger)

	u := &UVBus{
		Logger: logger,
		Loop:   loop.New(),
	}
	logger.Info().Msg("uvbus application initialized")
	return u, nil
}

// EnablePrometheus starts a Prometheus reporter and routes all framework
// metrics through it.
func (u *UVBus) EnablePrometheus(cfg *prometheus.ReporterConfig) error {
	r, err := prometheus.NewReporter(cfg)
	if err != nil {
		return err
	}
	u.promReporter = r
	metrics.SetMetricsReporters([]metrics.Reporter{r})
	return nil
}

// NewServer builds an rpc server on the application loop.
func (u *UVBus) NewServer(cfg *rpc.ServerCfg) (*rpc.Server, error) {
	return rpc.NewServer(u.Loop, cfg)
}

// NewClient builds an rpc client on the application loop.
func (u *UVBus) NewClient(cfg *rpc.ClientCfg) (*rpc.Client, error) {
	return rpc.NewClient(u.Loop, cfg)
}

// NewPublisher builds a pub/sub publisher on the application loop.
func (u *UVBus) NewPublisher(cfg *rpc.ServerCfg) (*rpc.Publisher, error) {
	return rpc.NewPublisher(u.Loop, cfg)
}

// NewSubscriber builds a pub/sub subscriber on the application loop.
func (u *UVBus) NewSubscriber(cfg *rpc.ClientCfg) (*rpc.Subscriber, error) {
	return rpc.NewSubscriber(u.Loop, cfg)
}

// Run drives the application loop until Stop.
func (u *UVBus) Run() {
	u.Loop.Run()
}

// Stop shuts the application down: the loop exits, the metrics reporter
// flushes and the logger closes.
func (u *UVBus) Stop() {
	u.Logger.Info().Msg("uvbus application shutting down")
	u.Loop.Stop()
	if u.promReporter != nil {
		u.promReporter.Stop()
	}
	log.Close()
}
