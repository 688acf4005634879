// Package config loads the hiveflow configuration.
//
// Precedence: defaults, then the YAML file, then HIVEFLOW_* environment
// variables. A missing config file is not an error; the defaults run a
// usable single-node setup with the memory store.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hiveflow/hiveflow/hitl"
	"github.com/hiveflow/hiveflow/routing"
	"github.com/hiveflow/hiveflow/store"
	"github.com/hiveflow/hiveflow/swarm"
)

// Config is the complete hiveflow configuration.
type Config struct {
	Server   ServerConfig      `yaml:"server" env:"SERVER"`
	Log      LogConfig         `yaml:"log" env:"LOG"`
	Registry RegistryConfig    `yaml:"registry" env:"REGISTRY"`
	Swarm    SwarmConfig       `yaml:"swarm" env:"SWARM"`
	Routing  RoutingConfig     `yaml:"routing" env:"ROUTING"`
	HITL     HITLConfig        `yaml:"hitl" env:"HITL"`
	Store    store.StoreConfig `yaml:"store" env:"STORE"`
}

// ServerConfig configures the HTTP surface (health and metrics).
type ServerConfig struct {
	HTTPPort        int           `yaml:"http_port" env:"HTTP_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	MetricsEnabled  bool          `yaml:"metrics_enabled" env:"METRICS_ENABLED"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level" env:"LEVEL"`
	// Format is json or console.
	Format       string `yaml:"format" env:"FORMAT"`
	EnableCaller bool   `yaml:"enable_caller" env:"ENABLE_CALLER"`
}

// RegistryConfig locates the agent descriptor directory.
type RegistryConfig struct {
	Dir string `yaml:"dir" env:"DIR"`
}

// SwarmConfig holds the orchestrator bounds plus session persistence.
type SwarmConfig struct {
	MaxHandoffs      int           `yaml:"max_handoffs" env:"MAX_HANDOFFS"`
	RepeatTolerance  int           `yaml:"repeat_tolerance" env:"REPEAT_TOLERANCE"`
	SessionDir       string        `yaml:"session_dir" env:"SESSION_DIR"`
	SessionRetention time.Duration `yaml:"session_retention" env:"SESSION_RETENTION"`
	EventLogPath     string        `yaml:"event_log_path" env:"EVENT_LOG_PATH"`

	// InvokerURL is the agent runner webhook. Executions are rejected
	// when unset.
	InvokerURL     string        `yaml:"invoker_url" env:"INVOKER_URL"`
	InvokerTimeout time.Duration `yaml:"invoker_timeout" env:"INVOKER_TIMEOUT"`
}

// OrchestratorConfig converts the swarm section to the swarm package's
// config type.
func (c SwarmConfig) OrchestratorConfig() swarm.Config {
	return swarm.Config{
		MaxHandoffs:     c.MaxHandoffs,
		RepeatTolerance: c.RepeatTolerance,
	}
}

// RoutingConfig configures the adaptive routing controller.
type RoutingConfig struct {
	BaseThreshold int     `yaml:"base_threshold" env:"BASE_THRESHOLD"`
	ThresholdMin  float64 `yaml:"threshold_min" env:"THRESHOLD_MIN"`
	ThresholdMax  float64 `yaml:"threshold_max" env:"THRESHOLD_MAX"`
	Window        int     `yaml:"window" env:"WINDOW"`
	Step          float64 `yaml:"step" env:"STEP"`
}

// ControllerConfig converts the routing section to the routing package's
// config type.
func (c RoutingConfig) ControllerConfig() routing.Config {
	return routing.Config{
		BaseThreshold: c.BaseThreshold,
		ThresholdMin:  c.ThresholdMin,
		ThresholdMax:  c.ThresholdMax,
		Window:        c.Window,
		Step:          c.Step,
	}
}

// HITLConfig configures the adaptive pause gate.
type HITLConfig struct {
	PauseThreshold float64       `yaml:"pause_threshold" env:"PAUSE_THRESHOLD"`
	BulkThreshold  int           `yaml:"bulk_threshold" env:"BULK_THRESHOLD"`
	RateLimit      int           `yaml:"rate_limit" env:"RATE_LIMIT"`
	RateWindow     time.Duration `yaml:"rate_window" env:"RATE_WINDOW"`
	HistoryWindow  int           `yaml:"history_window" env:"HISTORY_WINDOW"`
	DecayFactor    float64       `yaml:"decay_factor" env:"DECAY_FACTOR"`
	Environment    string        `yaml:"environment" env:"ENVIRONMENT"`
}

// GateConfig converts the hitl section to the hitl package's config type.
func (c HITLConfig) GateConfig() hitl.Config {
	return hitl.Config{
		PauseThreshold: c.PauseThreshold,
		BulkThreshold:  c.BulkThreshold,
		RateLimit:      c.RateLimit,
		RateWindow:     c.RateWindow,
		HistoryWindow:  c.HistoryWindow,
		DecayFactor:    c.DecayFactor,
	}
}

// Loader loads configuration with builder-style options.
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader creates a loader with the HIVEFLOW env prefix.
func NewLoader() *Loader {
	return &Loader{envPrefix: "HIVEFLOW"}
}

// WithConfigPath sets the YAML file path.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix overrides the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator adds a validation hook run after loading.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load resolves the configuration: defaults, then file, then env.
func (l *Loader) Load() (*Config, error) {
	cfg := Default()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}
	return cfg, nil
}

// MustLoad loads the configuration or panics. For main() wiring only.
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// setFieldsFromEnv walks the struct and applies <prefix>_<tag> overrides.
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}
		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}
	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
			return nil
		}
		i, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(i)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}
	return nil
}

// Validate rejects configurations that cannot run.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("unknown log level %q", c.Log.Level))
	}
	if c.Registry.Dir == "" {
		errs = append(errs, "registry dir must be set")
	}
	if c.Swarm.MaxHandoffs <= 0 {
		errs = append(errs, "swarm max_handoffs must be positive")
	}
	if c.Swarm.RepeatTolerance <= 0 {
		errs = append(errs, "swarm repeat_tolerance must be positive")
	}
	if c.Routing.ThresholdMin > c.Routing.ThresholdMax {
		errs = append(errs, "routing threshold_min exceeds threshold_max")
	}
	if c.HITL.PauseThreshold < 0 || c.HITL.PauseThreshold > 1 {
		errs = append(errs, "hitl pause_threshold must be in [0,1]")
	}
	switch c.Store.Type {
	case store.StoreTypeMemory, store.StoreTypeFile, store.StoreTypeRedis, store.StoreTypeSQLite:
	default:
		errs = append(errs, fmt.Sprintf("unknown store type %q", c.Store.Type))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return nil
}
