package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var structValidator = validator.New()

// Validate runs struct-tag validation (go-playground/validator, tarsy's
// pkg/config/validator.go choice) followed by the cross-field consistency
// checks each sub-config defines.
func Validate(cfg *Config) error {
	if err := structValidator.Struct(cfg); err != nil {
		return &ValidationError{Component: "config", Err: err}
	}
	if err := cfg.Routing.Validate(); err != nil {
		return err
	}
	if cfg.Safety.RunCostCap <= 0 {
		return NewValidationError("safety", "run_cost_cap", fmt.Errorf("must be positive"))
	}
	return nil
}
