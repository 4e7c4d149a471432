package config

import (
	"errors"
	"fmt"
)

// Validate checks the configuration for required fields and valid values.
// Returns an error with a descriptive field path on failure.
func (c *Config) Validate() error {
	var errs []error

	// server.port must be positive.
	if c.Server.Port <= 0 {
		errs = append(errs, fmt.Errorf("server.port must be > 0, got %d", c.Server.Port))
	}

	// auth.type must be a known value.
	switch c.Auth.Type {
	case "none", "apikey", "jwt":
		// valid
	default:
		errs = append(errs, fmt.Errorf("auth.type must be \"none\", \"apikey\", or \"jwt\", got %q", c.Auth.Type))
	}

	// JWT validation needs a key source.
	if c.Auth.Type == "jwt" && c.Auth.JWT.JWKSURL == "" {
		errs = append(errs, fmt.Errorf("auth.jwt.jwks_url is required when auth.type is \"jwt\""))
	}

	// The smoother's delay curve divides by the zero-delay queue length.
	if c.Stream.SmootherZeroDelayQueue < 0 {
		errs = append(errs, fmt.Errorf("stream.smoother_zero_delay_queue must be >= 0, got %d", c.Stream.SmootherZeroDelayQueue))
	}
	if c.Stream.ChunkerIdleFlushSeconds < 0 {
		errs = append(errs, fmt.Errorf("stream.chunker_idle_flush_seconds must be >= 0, got %g", c.Stream.ChunkerIdleFlushSeconds))
	}

	return errors.Join(errs...)
}
