// Package config loads the configuration of the decoding server.
package config

import (
	"fmt"
	"os"

	"github.com/hashicorp/go-multierror"
	"github.com/xaionaro-go/speechstream/pkg/decoder/implementations/kalditcp"
	"github.com/xaionaro-go/speechstream/pkg/decoder/implementations/stub"
	"gopkg.in/yaml.v3"
)

const (
	DefaultListenAddress = "0.0.0.0:5050"

	EngineTypeStub     = "stub"
	EngineTypeKaldiTCP = "kaldi-tcp"
)

type Config struct {
	ListenAddress      string        `yaml:"listen_address"`
	Workers            uint          `yaml:"workers"`
	PrewarmSession     bool          `yaml:"prewarm_session"`
	MaxRecvMessageSize int           `yaml:"max_recv_message_size"`
	Metrics            MetricsConfig `yaml:"metrics"`
	Engine             EngineConfig  `yaml:"engine"`
}

type MetricsConfig struct {
	// ListenAddress is where "/metrics" is served; empty disables it.
	ListenAddress string `yaml:"listen_address"`
}

type EngineConfig struct {
	Type string `yaml:"type"`

	// Resources are model files the engine depends on; all of them must exist.
	Resources []string        `yaml:"resources"`
	Stub      stub.Config     `yaml:"stub"`
	KaldiTCP  kalditcp.Config `yaml:"kaldi_tcp"`
}

func Default() Config {
	return Config{
		ListenAddress:      DefaultListenAddress,
		Workers:            1,
		PrewarmSession:     true,
		MaxRecvMessageSize: 16 << 20,
		Engine: EngineConfig{
			Type:     EngineTypeStub,
			Stub:     stub.DefaultConfig(),
			KaldiTCP: kalditcp.DefaultConfig(),
		},
	}
}

// Load reads the YAML file on top of Default. An empty path returns Default.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("unable to read '%s': %w", path, err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("unable to parse '%s': %w", path, err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var mErr *multierror.Error
	if c.ListenAddress == "" {
		mErr = multierror.Append(mErr, fmt.Errorf("listen_address is empty"))
	}
	if c.Workers == 0 {
		mErr = multierror.Append(mErr, fmt.Errorf("workers must be at least 1"))
	}
	if c.MaxRecvMessageSize < 0 {
		mErr = multierror.Append(mErr, fmt.Errorf("max_recv_message_size is negative: %d", c.MaxRecvMessageSize))
	}
	if err := c.Engine.Validate(); err != nil {
		mErr = multierror.Append(mErr, fmt.Errorf("engine: %w", err))
	}
	return mErr.ErrorOrNil()
}

func (c EngineConfig) Validate() error {
	var mErr *multierror.Error
	switch c.Type {
	case EngineTypeStub:
		if c.Stub.SampleRate == 0 {
			mErr = multierror.Append(mErr, fmt.Errorf("stub.sample_rate is not set"))
		}
	case EngineTypeKaldiTCP:
		if c.KaldiTCP.Address == "" {
			mErr = multierror.Append(mErr, fmt.Errorf("kaldi_tcp.address is not set"))
		}
	default:
		mErr = multierror.Append(mErr, fmt.Errorf("unknown engine type '%s'", c.Type))
	}
	for _, path := range c.Resources {
		if _, err := os.Stat(path); err != nil {
			mErr = multierror.Append(mErr, fmt.Errorf("resource '%s' is not accessible: %w", path, err))
		}
	}
	return mErr.ErrorOrNil()
}
