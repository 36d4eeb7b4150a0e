package rpc

import (
	"os"

	"github.com/linchenxuan/uvbus/codes"
	"github.com/linchenxuan/uvbus/transport"
	"github.com/pkg/errors"
	"go.yaml.in/yaml/v2"
)

const _defaultMaxPending = 1024

// ServerCfg configures an rpc server or publisher.
type ServerCfg struct {
	// Address is the listen endpoint, e.g. "tcp://127.0.0.1:9000".
	Address string `yaml:"address"`
	// TimeoutMS is reserved for transport-level timeouts; zero disables.
	TimeoutMS int `yaml:"timeoutMS"`
	// SchedulerConcurrency caps handler-spawned task concurrency when the
	// application attaches a scheduler; zero means unlimited.
	SchedulerConcurrency int `yaml:"schedulerConcurrency"`
}

// Validate checks the server configuration.
func (c *ServerCfg) Validate() error {
	if _, err := transport.Parse(c.Address); err != nil {
		return err
	}
	if c.TimeoutMS < 0 {
		return codes.Errorf(codes.ErrInvalidParam, "negative timeout %d", c.TimeoutMS)
	}
	if c.SchedulerConcurrency < 0 {
		return codes.Errorf(codes.ErrInvalidParam, "negative scheduler concurrency %d", c.SchedulerConcurrency)
	}
	return nil
}

// GetName identifies the config section in composite files.
func (c *ServerCfg) GetName() string { return "rpcServer" }

// ClientCfg configures an rpc client or subscriber.
type ClientCfg struct {
	// Address is the endpoint to connect to.
	Address string `yaml:"address"`
	// TimeoutMS is the connect timeout; zero disables.
	TimeoutMS int `yaml:"timeoutMS"`
	// MaxPending caps in-flight requests; further calls are rejected with
	// a rate-limited code. Zero selects the default of 1024.
	MaxPending int `yaml:"maxPending"`
}

// Validate checks the client configuration and applies defaults.
func (c *ClientCfg) Validate() error {
	if _, err := transport.Parse(c.Address); err != nil {
		return err
	}
	if c.TimeoutMS < 0 {
		return codes.Errorf(codes.ErrInvalidParam, "negative timeout %d", c.TimeoutMS)
	}
	if c.MaxPending < 0 {
		return codes.Errorf(codes.ErrInvalidParam, "negative pending cap %d", c.MaxPending)
	}
	if c.MaxPending == 0 {
		c.MaxPending = _defaultMaxPending
	}
	return nil
}

// GetName identifies the config section in composite files.
func (c *ClientCfg) GetName() string { return "rpcClient" }

// LoadServerCfg reads and validates a yaml server configuration.
func LoadServerCfg(path string) (*ServerCfg, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read config %s", path)
	}
	cfg := &ServerCfg{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parse config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadClientCfg reads and validates a yaml client configuration.
func LoadClientCfg(path string) (*ClientCfg, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read config %s", path)
	}
	cfg := &ClientCfg{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parse config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
