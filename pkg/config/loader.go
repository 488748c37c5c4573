package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// PilotYAMLConfig represents the complete pilot.yaml file structure
type PilotYAMLConfig struct {
	Server       *ServerConfig                 `yaml:"server"`
	Host         *HostConfig                   `yaml:"host"`
	AI           *AIConfig                     `yaml:"ai"`
	Queue        *QueueConfig                  `yaml:"queue"`
	Retention    *RetentionConfig              `yaml:"retention"`
	DeviceModels map[string]*DeviceModelConfig `yaml:"device_models"`
	Interfaces   map[string]*InterfaceConfig   `yaml:"interfaces"`
}

// Initialize loads, validates, and returns ready-to-use configuration.
// This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Load pilot.yaml from configDir
//  2. Expand environment variables
//  3. Parse YAML into structs
//  4. Merge built-in + user-defined device models
//  5. Merge section defaults under user overrides
//  6. Build in-memory registries
//  7. Validate all configuration
//  8. Return Config ready for use
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	cfg, err := load(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	stats := cfg.Stats()
	log.Info("Configuration initialized successfully",
		"device_models", stats.DeviceModels,
		"interfaces", stats.Interfaces,
		"host_devices", stats.HostDevices)

	return cfg, nil
}

// load is the internal loader (not exported)
func load(_ context.Context, configDir string) (*Config, error) {
	loader := &configLoader{
		configDir: configDir,
	}

	pilotConfig, err := loader.loadPilotYAML()
	if err != nil {
		return nil, NewLoadError("pilot.yaml", err)
	}

	// Merge built-in + user-defined device models (user overrides built-in)
	builtin := GetBuiltinConfig()
	deviceModels := mergeDeviceModels(builtin.DeviceModels, pilotConfig.DeviceModels)

	// Resolve each section: start with defaults, then merge user config on
	// top so unset fields keep their defaults.
	serverCfg, err := resolveServerConfig(pilotConfig.Server)
	if err != nil {
		return nil, err
	}
	hostCfg, err := resolveHostConfig(pilotConfig.Host)
	if err != nil {
		return nil, err
	}
	aiCfg, err := resolveAIConfig(pilotConfig.AI)
	if err != nil {
		return nil, err
	}
	queueCfg, err := resolveQueueConfig(pilotConfig.Queue)
	if err != nil {
		return nil, err
	}
	retentionCfg, err := resolveRetentionConfig(pilotConfig.Retention)
	if err != nil {
		return nil, err
	}

	return &Config{
		configDir:           configDir,
		Server:              serverCfg,
		Host:                hostCfg,
		AI:                  aiCfg,
		Queue:               queueCfg,
		Retention:           retentionCfg,
		DeviceModelRegistry: NewDeviceModelRegistry(deviceModels),
		InterfaceRegistry:   NewInterfaceRegistry(pilotConfig.Interfaces),
	}, nil
}

// validate performs comprehensive validation on loaded configuration
func validate(cfg *Config) error {
	validator := NewValidator(cfg)
	return validator.ValidateAll()
}

type configLoader struct {
	configDir string
}

func (l *configLoader) loadYAML(filename string, target any) error {
	path := filepath.Join(l.configDir, filename)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return err
	}

	// Expand environment variables using {{.VAR}} template syntax
	// Note: ExpandEnv passes through original data on parse/execution errors,
	// allowing YAML parser to handle the content (or fail with clearer error message)
	data = ExpandEnv(data)

	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	return nil
}

func (l *configLoader) loadPilotYAML() (*PilotYAMLConfig, error) {
	var config PilotYAMLConfig

	// Initialize maps to avoid nil maps
	config.DeviceModels = make(map[string]*DeviceModelConfig)
	config.Interfaces = make(map[string]*InterfaceConfig)

	if err := l.loadYAML("pilot.yaml", &config); err != nil {
		return nil, err
	}

	return &config, nil
}

func resolveServerConfig(user *ServerConfig) (*ServerConfig, error) {
	cfg := DefaultServerConfig()
	if user != nil {
		if err := mergo.Merge(cfg, user, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge server config: %w", err)
		}
	}
	return cfg, nil
}

func resolveHostConfig(user *HostConfig) (*HostConfig, error) {
	cfg := DefaultHostConfig()
	if user != nil {
		if err := mergo.Merge(cfg, user, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge host config: %w", err)
		}
	}
	return cfg, nil
}

func resolveAIConfig(user *AIConfig) (*AIConfig, error) {
	cfg := DefaultAIConfig()
	if user != nil {
		if err := mergo.Merge(cfg, user, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge ai config: %w", err)
		}
	}
	return cfg, nil
}

func resolveQueueConfig(user *QueueConfig) (*QueueConfig, error) {
	cfg := DefaultQueueConfig()
	if user != nil {
		if err := mergo.Merge(cfg, user, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge queue config: %w", err)
		}
	}
	return cfg, nil
}

func resolveRetentionConfig(user *RetentionConfig) (*RetentionConfig, error) {
	cfg := DefaultRetentionConfig()
	if user != nil {
		if err := mergo.Merge(cfg, user, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge retention config: %w", err)
		}
	}
	return cfg, nil
}
