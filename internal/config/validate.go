package config

import (
	"errors"
	"fmt"
)

// Validate checks the structural validity of a Config. All problems are
// reported at once via a joined error.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Telegram.Token == "" {
		errs = append(errs, errors.New("config: telegram.token is required"))
	}

	if len(cfg.Intra.Applications) == 0 {
		errs = append(errs, errors.New("config: at least one intra application is required"))
	}
	for i, app := range cfg.Intra.Applications {
		if app.UID == "" {
			errs = append(errs, fmt.Errorf("config: intra.applications[%d]: uid is required", i))
		}
		if app.Secret == "" {
			errs = append(errs, fmt.Errorf("config: intra.applications[%d]: secret is required", i))
		}
	}

	switch cfg.Cache.Backend {
	case "memory":
	case "redis":
		if cfg.Cache.Redis.Addr == "" {
			errs = append(errs, errors.New("config: cache.redis.addr is required when backend is \"redis\""))
		}
	default:
		errs = append(errs, fmt.Errorf("config: invalid cache backend %q (must be \"memory\" or \"redis\")", cfg.Cache.Backend))
	}

	if cfg.Telemetry.Enabled && cfg.Telemetry.Endpoint == "" {
		errs = append(errs, errors.New("config: telemetry.endpoint is required when telemetry is enabled"))
	}

	return errors.Join(errs...)
}
