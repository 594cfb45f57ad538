// Package config loads the catflap configuration from defaults, a config
// file and the environment.
package config

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/catflap/catflap/internal/errors"
	"github.com/catflap/catflap/internal/sink"
	"github.com/catflap/catflap/internal/snapshot"
	"github.com/catflap/catflap/internal/template"
)

// EnvPrefix is the prefix of configuration environment variables.
// CATFLAP_BUS__BROKER sets bus.broker.
const EnvPrefix = "CATFLAP_"

// Config represents the complete catflap configuration.
type Config struct {
	Templates []string          `koanf:"templates"`
	UserVars  []string          `koanf:"uservars"` // "name value"
	Topic     string            `koanf:"topic"`    // Default topic pattern for templates
	Paths     snapshot.Paths    `koanf:"paths"`
	Device    snapshot.Settings `koanf:"device"`
	Bus       BusConfig         `koanf:"bus"`
	Archive   ArchiveConfig     `koanf:"archive"`
	Log       LogConfig         `koanf:"log"`
}

// BusConfig configures the MQTT sink.
type BusConfig struct {
	Enabled  bool          `koanf:"enabled"`
	Broker   string        `koanf:"broker"`
	ClientID string        `koanf:"client_id"`
	Topic    string        `koanf:"topic"`
	QoS      int           `koanf:"qos"`
	Retain   bool          `koanf:"retain"`
	Timeout  time.Duration `koanf:"timeout"`
}

// ArchiveConfig configures the bbolt output archive.
type ArchiveConfig struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path"`
}

// LogConfig configures logging beyond the console.
type LogConfig struct {
	File string `koanf:"file"`
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"templates":                  []string{"templates/*"},
		"bus.enabled":                false,
		"bus.topic":                  "catflap/%event%",
		"bus.qos":                    0,
		"bus.timeout":                "5s",
		"archive.enabled":            false,
		"archive.path":               "catflap.db",
		"device.matcher":             "template",
		"device.matchtime":           30,
		"device.threshold":           0.8,
		"device.ok_matches_needed":   2,
		"device.in_direction":        "right",
		"device.min_width":           80,
		"device.min_height":          80,
		"device.prey_method":         "adaptive",
		"device.prey_steps":          2,
		"device.lockout_method":      1,
		"device.lockout_time":        30,
		"device.lockout_error":       3,
		"device.lockout_error_delay": 3.0,
	}
}

// Load builds the configuration from defaults, the file at path and the
// environment, in that order. An empty path skips the file layer.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigLoad, "loading defaults")
	}

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, errors.Wrapf(err, errors.ErrConfigLoad, "reading config file %s", path)
		}
		if err := k.Load(file.Provider(path), parserFor(path)); err != nil {
			return nil, errors.Wrapf(err, errors.ErrConfigLoad, "parsing config file %s", path)
		}
	}

	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}), nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigLoad, "loading environment")
	}

	var cfg Config
	unmarshalConf := koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           &cfg,
			WeaklyTypedInput: true,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
		},
	}
	if err := k.UnmarshalWithConf("", &cfg, unmarshalConf); err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigLoad, "decoding configuration")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func parserFor(path string) koanf.Parser {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return toml.Parser()
	}
	return yaml.Parser()
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	for _, pattern := range c.Templates {
		if _, err := filepath.Match(pattern, ""); err != nil {
			return errors.Wrapf(err, errors.ErrConfigValid, "templates: bad pattern %q", pattern)
		}
	}

	if _, err := c.UserVariables(); err != nil {
		return errors.Wrap(err, errors.ErrConfigValid, "uservars")
	}

	if c.Bus.Enabled && c.Bus.Broker == "" {
		return errors.New(errors.ErrConfigValid, "bus.broker is required when the bus is enabled")
	}
	if c.Bus.QoS < 0 || c.Bus.QoS > 2 {
		return errors.Newf(errors.ErrConfigValid, "bus.qos must be 0, 1 or 2, got %d", c.Bus.QoS)
	}

	if c.Archive.Enabled && c.Archive.Path == "" {
		return errors.New(errors.ErrConfigValid, "archive.path is required when the archive is enabled")
	}

	if c.Device.Threshold < 0 || c.Device.Threshold > 1 {
		return errors.Newf(errors.ErrConfigValid, "device.threshold must be between 0 and 1, got %g", c.Device.Threshold)
	}
	if c.Device.MinWidth < 0 || c.Device.MinHeight < 0 {
		return errors.Newf(errors.ErrConfigValid, "device.min_width and device.min_height must not be negative")
	}

	return nil
}

// UserVariables parses the configured user variables.
func (c *Config) UserVariables() ([]template.UserVariable, error) {
	vars := make([]template.UserVariable, 0, len(c.UserVars))
	for _, def := range c.UserVars {
		v, err := template.ParseUserVariable(def)
		if err != nil {
			return nil, err
		}
		vars = append(vars, v)
	}
	return vars, nil
}

// TemplateFiles expands the template globs into a sorted list of files.
// Relative globs are resolved against base.
func (c *Config) TemplateFiles(base string) ([]string, error) {
	seen := make(map[string]bool)
	var files []string

	for _, pattern := range c.Templates {
		if !filepath.IsAbs(pattern) && base != "" {
			pattern = filepath.Join(base, pattern)
		}
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrConfigValid, "templates: bad pattern %q", pattern)
		}
		sort.Strings(matches)

		for _, m := range matches {
			info, err := os.Stat(m)
			if err != nil || info.IsDir() || seen[m] {
				continue
			}
			seen[m] = true
			files = append(files, m)
		}
	}

	return files, nil
}

// BusSink returns the sink settings for the message bus.
func (c *Config) BusSink() sink.BusConfig {
	return sink.BusConfig{
		Broker:   c.Bus.Broker,
		ClientID: c.Bus.ClientID,
		Topic:    c.Bus.Topic,
		QoS:      byte(c.Bus.QoS),
		Retain:   c.Bus.Retain,
		Timeout:  c.Bus.Timeout,
	}
}
