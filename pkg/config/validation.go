package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks the configuration for errors. Struct tags cover the
// per-field rules; cross-field requirements are checked explicitly.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var invalid *validator.InvalidValidationError
		if errors.As(err, &invalid) {
			return fmt.Errorf("invalid configuration structure: %w", err)
		}

		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q validation (value: %v)",
					fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("invalid configuration:\n  %s", strings.Join(msgs, "\n  "))
		}
		return err
	}

	if err := cfg.Catalog.Validate(); err != nil {
		return fmt.Errorf("catalog: %w", err)
	}
	if err := validateStore(&cfg.Store); err != nil {
		return err
	}
	if cfg.Telemetry.Enabled && cfg.Telemetry.Endpoint == "" {
		return fmt.Errorf("telemetry is enabled but no endpoint is configured")
	}

	return nil
}

func validateStore(cfg *StoreConfig) error {
	switch cfg.Type {
	case StoreTypeBadger:
		if cfg.Badger.Path == "" {
			return fmt.Errorf("store: badger path is required")
		}
	case StoreTypeS3:
		if cfg.S3.Bucket == "" {
			return fmt.Errorf("store: s3 bucket is required")
		}
		if cfg.S3.Region == "" && cfg.S3.Endpoint == "" {
			return fmt.Errorf("store: s3 requires a region or a custom endpoint")
		}
		// The queue still needs the local store
		if cfg.Badger.Path == "" {
			return fmt.Errorf("store: badger path is required (mutation queue is always local)")
		}
	default:
		return fmt.Errorf("store: unsupported type: %s", cfg.Type)
	}
	return nil
}
