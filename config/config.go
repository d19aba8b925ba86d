package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"goodweather/internal/logger"
	"goodweather/internal/metrics"
	"goodweather/internal/schedule"
	"goodweather/internal/weather"
)

const envPrefix = "GOODWEATHER"

type Config struct {
	Location   LocationConfig             `mapstructure:"location"`
	Provider   ProviderConfig             `mapstructure:"provider"`
	Refresher  RefresherConfig            `mapstructure:"refresher"`
	Cache      CacheConfig                `mapstructure:"cache"`
	API        APIConfig                  `mapstructure:"api"`
	MQTT       MQTTConfig                 `mapstructure:"mqtt"`
	Database   DatabaseConfig             `mapstructure:"database"`
	Log        LogConfig                  `mapstructure:"log"`
	Thresholds map[string]ThresholdConfig `mapstructure:"thresholds"`
	Windows    []schedule.Window          `mapstructure:"windows"`

	v    *viper.Viper
	path string
}

type LocationConfig struct {
	Query     string  `mapstructure:"query"`
	Latitude  float64 `mapstructure:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `mapstructure:"longitude" validate:"gte=-180,lte=180"`
}

type ProviderConfig struct {
	Name         string        `mapstructure:"name" validate:"oneof=visualcrossing openmeteo open-meteo open_meteo openweather"`
	APIKey       string        `mapstructure:"api_key"`
	Units        string        `mapstructure:"units" validate:"oneof=us metric"`
	Timeout      time.Duration `mapstructure:"timeout" validate:"min=1s"`
	ForecastDays int           `mapstructure:"forecast_days" validate:"min=1,max=15"`
}

type RefresherConfig struct {
	Interval    time.Duration `mapstructure:"interval" validate:"min=1m"`
	Enabled     bool          `mapstructure:"enabled"`
	Parallelism int           `mapstructure:"parallelism" validate:"min=0,max=64"`
}

type CacheConfig struct {
	TTL       time.Duration `mapstructure:"ttl" validate:"min=0"`
	Retention time.Duration `mapstructure:"retention" validate:"min=0"`
}

type APIConfig struct {
	Port    int  `mapstructure:"port" validate:"min=1,max=65535"`
	Enabled bool `mapstructure:"enabled"`
}

type MQTTConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Broker      string `mapstructure:"broker" validate:"required_if=Enabled true"`
	TopicPrefix string `mapstructure:"topic_prefix" validate:"required_if=Enabled true"`
	ClientID    string `mapstructure:"client_id"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn warning error"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

// ThresholdConfig is one metric's acceptable range. Disabled drops the
// metric from evaluation entirely.
type ThresholdConfig struct {
	Min      float64 `mapstructure:"min"`
	Max      float64 `mapstructure:"max"`
	Disabled bool    `mapstructure:"disabled"`
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("location.query", "")
	v.SetDefault("location.latitude", 0)
	v.SetDefault("location.longitude", 0)
	v.SetDefault("provider.name", "visualcrossing")
	v.SetDefault("provider.api_key", "")
	v.SetDefault("provider.units", weather.UnitsUS)
	v.SetDefault("provider.timeout", "10s")
	v.SetDefault("provider.forecast_days", 7)
	v.SetDefault("refresher.interval", "1h")
	v.SetDefault("refresher.enabled", true)
	v.SetDefault("refresher.parallelism", 4)
	v.SetDefault("cache.ttl", "30m")
	v.SetDefault("cache.retention", "168h")
	v.SetDefault("api.port", 8045)
	v.SetDefault("api.enabled", true)
	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.topic_prefix", "goodweather")
	v.SetDefault("mqtt.client_id", "goodweather")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("database.path", "./goodweather.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	for m, r := range metrics.DefaultThresholds() {
		v.SetDefault(fmt.Sprintf("thresholds.%s.min", m), r.Min)
		v.SetDefault(fmt.Sprintf("thresholds.%s.max", m), r.Max)
		v.SetDefault(fmt.Sprintf("thresholds.%s.disabled", m), false)
	}
	v.SetDefault("windows", windowsToMaps(schedule.DefaultWindows()))
}

// Load reads configPath (or config.yaml from . and /etc/goodweather), a .env
// file and GOODWEATHER_* environment variables, validates the result and
// checks that the engine settings build.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug("no .env file loaded", "error", err)
	}

	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/goodweather")
	}

	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	cfg.path = configPath
	return cfg, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.v = v
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints and that thresholds and windows form a
// valid engine configuration. Engine errors are returned unwrapped so callers
// can match them with errors.As.
func (c *Config) Validate() error {
	if err := structValidator().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	_, _, err := c.Engine()
	return err
}

// Engine builds the thresholds and window registry described by the config.
func (c *Config) Engine() (metrics.Thresholds, schedule.Windows, error) {
	ranges := make(map[metrics.Metric]metrics.Range, len(c.Thresholds))
	for name, tc := range c.Thresholds {
		if tc.Disabled {
			continue
		}
		ranges[metrics.Metric(name)] = metrics.Range{Min: tc.Min, Max: tc.Max}
	}
	th, err := metrics.NewThresholds(metrics.DefaultCatalog(), ranges)
	if err != nil {
		return nil, nil, err
	}

	ws, err := schedule.NewWindows(c.Windows...)
	if err != nil {
		return nil, nil, err
	}
	return th, ws, nil
}

func (c *Config) ProviderSettings() weather.Settings {
	return weather.Settings{
		Name:    c.Provider.Name,
		APIKey:  c.Provider.APIKey,
		Units:   c.Provider.Units,
		Timeout: c.Provider.Timeout,
	}
}

// ErrNoLocation is returned by Query when neither a place name nor
// coordinates are configured.
var ErrNoLocation = errors.New("location.query or location.latitude/longitude must be set")

// Query builds the provider query for the configured location. Only commands
// that fetch a forecast need one, so Load does not require it.
func (c *Config) Query() (weather.Query, error) {
	q := weather.Query{
		Location:  strings.TrimSpace(c.Location.Query),
		Latitude:  c.Location.Latitude,
		Longitude: c.Location.Longitude,
		Days:      c.Provider.ForecastDays,
	}
	if q.Location == "" && q.Latitude == 0 && q.Longitude == 0 {
		return weather.Query{}, ErrNoLocation
	}
	return q, nil
}

// Path is the file the config was read from, if any.
func (c *Config) Path() string {
	if c.path != "" {
		return c.path
	}
	if c.v != nil {
		return c.v.ConfigFileUsed()
	}
	return ""
}

// Watch calls fn with a freshly decoded config whenever the config file
// changes. The receiver is never modified.
func (c *Config) Watch(fn func(*Config, error)) error {
	if c.v == nil || c.v.ConfigFileUsed() == "" {
		return errors.New("no config file to watch")
	}
	c.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		logger.Info("config file changed", "file", e.Name, "op", e.Op.String())
		next, err := decode(c.v)
		if next != nil {
			next.path = c.path
		}
		fn(next, err)
	})
	c.v.WatchConfig()
	return nil
}

// SaveEngine writes thresholds and windows back to the config file the
// config was loaded from. Only the file's own contents plus those two keys
// are written, so defaults and environment overrides such as API keys never
// end up on disk. Default metrics missing from th are written as disabled so
// they stay omitted.
func (c *Config) SaveEngine(th metrics.Thresholds, ws schedule.Windows) error {
	path := c.Path()
	if path == "" {
		return errors.New("no config file to save to")
	}

	file := viper.New()
	file.SetConfigFile(path)
	if err := file.ReadInConfig(); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	thresholds := make(map[string]ThresholdConfig)
	out := make(map[string]interface{})
	for _, m := range metrics.DefaultCatalog().Metrics() {
		if _, ok := th[m]; !ok {
			thresholds[string(m)] = ThresholdConfig{Disabled: true}
			out[string(m)] = map[string]interface{}{"disabled": true}
		}
	}
	for m, r := range th {
		thresholds[string(m)] = ThresholdConfig{Min: r.Min, Max: r.Max}
		out[string(m)] = map[string]interface{}{"min": r.Min, "max": r.Max, "disabled": false}
	}

	file.Set("thresholds", out)
	file.Set("windows", windowsToMaps(ws))
	if err := file.WriteConfigAs(path); err != nil {
		return err
	}

	c.Thresholds = thresholds
	c.Windows = append([]schedule.Window(nil), ws...)
	return nil
}

func windowsToMaps(ws schedule.Windows) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(ws))
	for _, w := range ws {
		out = append(out, map[string]interface{}{
			"name":       w.Name,
			"label":      w.Label,
			"start_hour": w.StartHour,
			"end_hour":   w.EndHour,
		})
	}
	return out
}
