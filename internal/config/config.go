// Package config loads, validates and writes knotdc configuration.
//
// Values are resolved in this order, later sources winning:
//
//  1. built-in defaults (Default)
//  2. a YAML file (knotdc.yaml in the working directory or ~/.knotdc,
//     or an explicit path)
//  3. environment variables prefixed with KNOTDC_, with dots replaced by
//     underscores: KNOTDC_SERVER_PORT=6000 sets server.port
//
// A missing file is not an error unless its path was given explicitly.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/dreamware/knotdc/internal/crystal"
)

const (
	fileName  = "knotdc"
	fileType  = "yaml"
	envPrefix = "KNOTDC"
)

// ServerConfig configures the TCP command server.
type ServerConfig struct {
	Host              string        `mapstructure:"host" validate:"required"`
	Port              int           `mapstructure:"port" validate:"gte=0,lte=65535"`
	PollInterval      time.Duration `mapstructure:"poll_interval" validate:"gt=0"`
	ReadBuffer        int           `mapstructure:"read_buffer" validate:"gte=16"`
	CommandsPerSecond float64       `mapstructure:"commands_per_second" validate:"gte=0"`
	Burst             int           `mapstructure:"burst" validate:"gte=0"`
}

// AIConfig configures the correction and learning engines and the
// background monitor. An Interval of 0 disables the monitor; a Seed of 0
// seeds the optimizer randomly.
type AIConfig struct {
	FidelityThreshold float64       `mapstructure:"fidelity_threshold" validate:"gt=0,lte=1"`
	Interval          time.Duration `mapstructure:"interval" validate:"gte=0"`
	ErrorHistory      int           `mapstructure:"error_history" validate:"gte=1"`
	OperationHistory  int           `mapstructure:"operation_history" validate:"gte=1"`
	LearningRate      float64       `mapstructure:"learning_rate" validate:"gt=0,lte=1"`
	Seed              uint64        `mapstructure:"seed"`
}

// DashboardConfig configures the HTTP dashboard.
type DashboardConfig struct {
	Listen         string        `mapstructure:"listen" validate:"required"`
	DatacenterAddr string        `mapstructure:"datacenter_addr" validate:"required,hostname_port"`
	Refresh        time.Duration `mapstructure:"refresh" validate:"gt=0"`
	Timeout        time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

// MetricsConfig configures the daemon's Prometheus endpoint. An empty
// Listen disables it.
type MetricsConfig struct {
	Listen string `mapstructure:"listen"`
}

// TraceConfig selects where OpenTelemetry spans are exported. "none"
// leaves the global no-op provider in place.
type TraceConfig struct {
	Exporter string `mapstructure:"exporter" validate:"oneof=none stdout"`
}

// LogConfig selects log level and format.
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

// CrystalConfig declares a crystal created at startup.
type CrystalConfig struct {
	Name       string `mapstructure:"name" validate:"required,excludesall= \t\r\n"`
	Dimensions []int  `mapstructure:"dimensions" validate:"len=3,dive,gte=1,lte=16777216"`
}

// SeedConfig declares a payload stored at startup.
type SeedConfig struct {
	Crystal string `mapstructure:"crystal" validate:"required"`
	Data    string `mapstructure:"data" validate:"required"`
	Knot    string `mapstructure:"knot" validate:"oneof=trebol figura_ocho toroidal borromeo hopf"`
}

// Config is the complete knotdc configuration.
type Config struct {
	Name      string          `mapstructure:"name" validate:"required"`
	Server    ServerConfig    `mapstructure:"server"`
	AI        AIConfig        `mapstructure:"ai"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Trace     TraceConfig     `mapstructure:"trace"`
	Log       LogConfig       `mapstructure:"log"`
	Crystals  []CrystalConfig `mapstructure:"crystals" validate:"dive"`
	Seed      []SeedConfig    `mapstructure:"seed" validate:"dive"`
	Demo      bool            `mapstructure:"demo"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Name: "QUANTUM_KNOT_DC_001",
		Server: ServerConfig{
			Host:         "localhost",
			Port:         5555,
			PollInterval: time.Second,
			ReadBuffer:   4096,
		},
		AI: AIConfig{
			FidelityThreshold: 0.95,
			Interval:          30 * time.Second,
			ErrorHistory:      1000,
			OperationHistory:  5000,
			LearningRate:      0.01,
		},
		Dashboard: DashboardConfig{
			Listen:         ":8080",
			DatacenterAddr: "localhost:5555",
			Refresh:        2 * time.Second,
			Timeout:        5 * time.Second,
		},
		Metrics: MetricsConfig{Listen: ":9090"},
		Trace:   TraceConfig{Exporter: "none"},
		Log:     LogConfig{Level: "info", Format: "text"},
		Demo:    true,
	}
}

var validate = validator.New()

// Validate checks every field constraint and cross-references seed
// entries against the declared crystals when the demo set is off.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	for _, cr := range c.Crystals {
		d := crystal.Dimensions{X: cr.Dimensions[0], Y: cr.Dimensions[1], Z: cr.Dimensions[2]}
		if !d.Valid() {
			return fmt.Errorf("invalid config: crystal %q exceeds %d cells", cr.Name, crystal.MaxVolume)
		}
	}
	if c.Demo {
		return nil
	}
	declared := make(map[string]bool, len(c.Crystals))
	for _, cr := range c.Crystals {
		declared[cr.Name] = true
	}
	for _, s := range c.Seed {
		if !declared[s.Crystal] {
			return fmt.Errorf("invalid config: seed references undeclared crystal %q", s.Crystal)
		}
	}
	return nil
}

// setDefaults registers every key so that environment overrides apply
// even when no file sets them.
func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("name", c.Name)

	v.SetDefault("server.host", c.Server.Host)
	v.SetDefault("server.port", c.Server.Port)
	v.SetDefault("server.poll_interval", c.Server.PollInterval.String())
	v.SetDefault("server.read_buffer", c.Server.ReadBuffer)
	v.SetDefault("server.commands_per_second", c.Server.CommandsPerSecond)
	v.SetDefault("server.burst", c.Server.Burst)

	v.SetDefault("ai.fidelity_threshold", c.AI.FidelityThreshold)
	v.SetDefault("ai.interval", c.AI.Interval.String())
	v.SetDefault("ai.error_history", c.AI.ErrorHistory)
	v.SetDefault("ai.operation_history", c.AI.OperationHistory)
	v.SetDefault("ai.learning_rate", c.AI.LearningRate)
	v.SetDefault("ai.seed", c.AI.Seed)

	v.SetDefault("dashboard.listen", c.Dashboard.Listen)
	v.SetDefault("dashboard.datacenter_addr", c.Dashboard.DatacenterAddr)
	v.SetDefault("dashboard.refresh", c.Dashboard.Refresh.String())
	v.SetDefault("dashboard.timeout", c.Dashboard.Timeout.String())

	v.SetDefault("metrics.listen", c.Metrics.Listen)
	v.SetDefault("trace.exporter", c.Trace.Exporter)

	v.SetDefault("log.level", c.Log.Level)
	v.SetDefault("log.format", c.Log.Format)

	crystals := make([]map[string]any, 0, len(c.Crystals))
	for _, cr := range c.Crystals {
		crystals = append(crystals, map[string]any{"name": cr.Name, "dimensions": cr.Dimensions})
	}
	v.SetDefault("crystals", crystals)

	seed := make([]map[string]any, 0, len(c.Seed))
	for _, s := range c.Seed {
		seed = append(seed, map[string]any{"crystal": s.Crystal, "data": s.Data, "knot": s.Knot})
	}
	v.SetDefault("seed", seed)

	v.SetDefault("demo", c.Demo)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v, Default())
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load resolves the configuration. An empty path searches the working
// directory and ~/.knotdc for knotdc.yaml and tolerates its absence.
func Load(path string) (Config, error) {
	v := newViper()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(fileName)
		v.SetConfigType(fileType)
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".knotdc"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Marshal renders c as YAML with the same keys Load reads.
func Marshal(c Config) ([]byte, error) {
	v := viper.New()
	setDefaults(v, c)
	data, err := yaml.Marshal(v.AllSettings())
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return data, nil
}

// WriteDefault writes the default configuration to path. An existing file
// is only replaced when force is set.
func WriteDefault(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		} else if !os.IsNotExist(err) {
			return fmt.Errorf("stat %s: %w", path, err)
		}
	}

	data, err := Marshal(Default())
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return os.WriteFile(path, data, 0o644)
}
