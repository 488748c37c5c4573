package config

import (
	"fmt"
	"strings"
	"time"
)

// Validator performs cross-section validation on a loaded Config.
type Validator struct {
	cfg *Config
}

// NewValidator creates a validator for the given config
func NewValidator(cfg *Config) *Validator {
	return &Validator{cfg: cfg}
}

// ValidateAll runs every validation and returns the first failure.
func (v *Validator) ValidateAll() error {
	if err := v.validateServer(); err != nil {
		return err
	}
	if err := v.validateAI(); err != nil {
		return err
	}
	if err := v.validateQueue(); err != nil {
		return err
	}
	if err := v.validateInterfaces(); err != nil {
		return err
	}
	if err := v.validateHostDevices(); err != nil {
		return err
	}
	return nil
}

func (v *Validator) validateServer() error {
	s := v.cfg.Server
	if s == nil {
		return NewValidationError("server", "server", "", ErrMissingRequiredField)
	}
	if s.HostRequestTimeout <= 0 || s.SweepInterval <= 0 || s.HostOfflineAfter <= 0 {
		return NewValidationError("server", "server", "timeouts",
			fmt.Errorf("%w: timeouts and intervals must be positive", ErrInvalidValue))
	}
	// Navigation trees mutate frequently; longer TTLs serve stale paths
	if s.NavCacheTTL <= 0 || s.NavCacheTTL > 5*time.Minute {
		return NewValidationError("server", "server", "nav_cache_ttl",
			fmt.Errorf("%w: must be in (0, 5m], got %v", ErrInvalidValue, s.NavCacheTTL))
	}
	return nil
}

func (v *Validator) validateAI() error {
	ai := v.cfg.AI
	if ai == nil {
		return NewValidationError("ai", "ai", "", ErrMissingRequiredField)
	}
	if ai.FuzzyThreshold < 0 || ai.FuzzyThreshold > 1 {
		return NewValidationError("ai", "ai", "fuzzy_threshold",
			fmt.Errorf("%w: must be in [0,1], got %v", ErrInvalidValue, ai.FuzzyThreshold))
	}
	if ai.TopNodes <= 0 || ai.TopActions <= 0 || ai.TopVerifications <= 0 {
		return NewValidationError("ai", "ai", "top_n",
			fmt.Errorf("%w: ceilings must be positive", ErrInvalidValue))
	}
	if ai.MaxSuggestions <= 0 {
		return NewValidationError("ai", "ai", "max_suggestions",
			fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if ai.Provider == nil || ai.Provider.Model == "" {
		return NewValidationError("ai", "provider", "model", ErrMissingRequiredField)
	}
	return nil
}

func (v *Validator) validateQueue() error {
	q := v.cfg.Queue
	if q == nil {
		return NewValidationError("queue", "queue", "", ErrMissingRequiredField)
	}
	if q.MailboxSize <= 0 {
		return NewValidationError("queue", "queue", "mailbox_size",
			fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if q.ExecutionTimeout <= 0 || q.ScriptExecutionTimeout < q.ExecutionTimeout {
		return NewValidationError("queue", "queue", "execution_timeout",
			fmt.Errorf("%w: script timeout must be >= execution timeout > 0", ErrInvalidValue))
	}
	if q.RecordRetention <= 0 {
		return NewValidationError("queue", "queue", "record_retention",
			fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	return nil
}

func (v *Validator) validateInterfaces() error {
	if v.cfg.InterfaceRegistry == nil {
		return nil
	}
	for _, name := range v.cfg.InterfaceRegistry.Names() {
		iface, err := v.cfg.InterfaceRegistry.Get(name)
		if err != nil {
			return err
		}
		if strings.TrimSpace(iface.DeviceModel) == "" {
			return NewValidationError("interface", name, "device_model", ErrMissingRequiredField)
		}
		if !v.cfg.DeviceModelRegistry.Has(iface.DeviceModel) {
			return NewValidationError("interface", name, "device_model",
				fmt.Errorf("%w: %s", ErrInvalidReference, iface.DeviceModel))
		}
	}
	return nil
}

func (v *Validator) validateHostDevices() error {
	if v.cfg.Host == nil {
		return nil
	}
	seen := make(map[string]bool)
	for _, d := range v.cfg.Host.Devices {
		if strings.TrimSpace(d.DeviceID) == "" {
			return NewValidationError("host", v.cfg.Host.HostName, "device_id", ErrMissingRequiredField)
		}
		if seen[d.DeviceID] {
			return NewValidationError("host", v.cfg.Host.HostName, "device_id",
				fmt.Errorf("%w: duplicate device %s", ErrInvalidValue, d.DeviceID))
		}
		seen[d.DeviceID] = true
		if !v.cfg.DeviceModelRegistry.Has(d.DeviceModel) {
			return NewValidationError("host", v.cfg.Host.HostName, "device_model",
				fmt.Errorf("%w: %s", ErrInvalidReference, d.DeviceModel))
		}
	}
	return nil
}
