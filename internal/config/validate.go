package config

import (
	"errors"
	"fmt"
)

// ErrInvalid is wrapped by every configuration validation failure.
var ErrInvalid = errors.New("invalid configuration")

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// Validate checks that the required top-level keys are present. Model
// definitions and tier names are checked by the catalog and router that
// consume them.
func (r *RoutingConfig) Validate() error {
	if len(r.Models) == 0 {
		return invalidf("models: at least one model is required")
	}
	if r.RoutingRules == nil {
		return invalidf("routing_rules: missing")
	}
	if r.FallbackChain == nil {
		return invalidf("fallback_chain: missing")
	}
	t := r.ComplexityThresholds
	if t.ShortTextMax < 0 || t.MediumTextMax < 0 {
		return invalidf("complexity_thresholds: lengths must be >= 0")
	}
	if t.ShortTextMax > 0 && t.MediumTextMax > 0 && t.MediumTextMax < t.ShortTextMax {
		return invalidf("complexity_thresholds: medium_text_max %d < short_text_max %d", t.MediumTextMax, t.ShortTextMax)
	}
	return nil
}

// Validate checks the service settings.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return invalidf("database.path: required for sqlite")
		}
	case "postgres":
		if c.Database.Host == "" || c.Database.Name == "" {
			return invalidf("database: host and name required for postgres")
		}
	default:
		return invalidf("database.driver: unknown driver %q", c.Database.Driver)
	}
	if c.Server.Port <= 0 {
		return invalidf("server.port: must be > 0")
	}
	if c.GRPC.Enabled && c.GRPC.Port <= 0 {
		return invalidf("grpc.port: must be > 0")
	}
	return nil
}
