// Package config loads the engine configuration from a YAML or JSON file with
// optional environment overrides (prefix PP_, section__key).
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/groundctl/passplan/core/model"
	"github.com/groundctl/passplan/core/planner"
	"github.com/groundctl/passplan/infra/mqtt"
	"github.com/groundctl/passplan/infra/store"
)

// SessionConfig carries the session-level gates.
type SessionConfig struct {
	// AckThreshold is the classification marking at or above which the
	// operator must acknowledge before save, e.g. "SECRET". Empty disables
	// the gate.
	AckThreshold string `json:"ack_threshold"`
}

// Threshold parses the configured marking.
func (c SessionConfig) Threshold() (model.ClassificationLevel, error) {
	return model.ParseClassification(c.AckThreshold)
}

// MetricsConfig selects the metric sinks.
type MetricsConfig struct {
	PrometheusEnabled bool   `json:"prometheus_enabled"`
	PrometheusPort    string `json:"prometheus_port"`
	InfluxEnabled     bool   `json:"influx_enabled"`
	InfluxURL         string `json:"influx_url"`
	InfluxToken       string `json:"influx_token"`
	InfluxOrg         string `json:"influx_org"`
	InfluxBucket      string `json:"influx_bucket"`
}

// SetDefaults applies sane defaults.
func (c *MetricsConfig) SetDefaults() {
	if c.PrometheusPort == "" {
		c.PrometheusPort = "9464"
	}
}

// Validate checks mandatory fields.
func (c MetricsConfig) Validate() error {
	if c.InfluxEnabled && c.InfluxURL == "" {
		return fmt.Errorf("influx_url is required when influx is enabled")
	}
	return nil
}

// Config is the root configuration.
type Config struct {
	Planner planner.Config `json:"planner"`
	Session SessionConfig  `json:"session"`
	Metrics MetricsConfig  `json:"metrics"`
	MQTT    mqtt.Config    `json:"mqtt"`
	Store   store.Config   `json:"store"`
}

// Load reads the configuration file, applies PP_ environment overrides, fills
// defaults and validates every section.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	var parser koanf.Parser
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", filepath.Ext(path))
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides, e.g. PP_PLANNER__MAX_AUTO_SITES=3.
	if err := k.Load(env.Provider("PP_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "pp_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.Planner.SetDefaults()
	cfg.Metrics.SetDefaults()
	cfg.MQTT.SetDefaults()
	cfg.Store.SetDefaults()

	if err := cfg.Planner.Validate(); err != nil {
		return nil, err
	}
	if _, err := cfg.Session.Threshold(); err != nil {
		return nil, err
	}
	if err := cfg.Metrics.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.MQTT.Validate(); err != nil {
		return nil, err
	}
	if cfg.Store.BaseURL != "" {
		if err := cfg.Store.Validate(); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}
