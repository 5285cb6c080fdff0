package internal

import "fmt"

// Option customises Run and RunMCP.
type Option func(*settings)

type settings struct {
	config *Config
}

// WithConfig supplies the configuration the server boots from.
func WithConfig(cfg *Config) Option {
	return func(s *settings) {
		s.config = cfg
	}
}

// collect applies the options and enforces the ones that are mandatory.
func collect(opts []Option) (*Config, error) {
	var s settings
	for _, opt := range opts {
		opt(&s)
	}
	if s.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return s.config, nil
}
