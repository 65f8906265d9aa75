// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const EnvPrefix = "ASTREMINA"

type AppConfig struct {
	Port     int    `mapstructure:"port"`
	DataDir  string `mapstructure:"data_dir"`
	Currency string `mapstructure:"currency"`
	SiteURL  string `mapstructure:"site_url"`
	Timezone string `mapstructure:"timezone"`
	Country  string `mapstructure:"country"`
}

type SchedulerConfig struct {
	Tick                  time.Duration `mapstructure:"tick"`
	DefaultSourceInterval time.Duration `mapstructure:"default_source_interval"`
	AlertsInterval        time.Duration `mapstructure:"alerts_interval"`
	ContractsInterval     time.Duration `mapstructure:"contracts_interval"`
	StatsInterval         time.Duration `mapstructure:"stats_interval"`
	StaleRunAfter         time.Duration `mapstructure:"stale_run_after"`
}

type DispatchConfig struct {
	PoolSize         int    `mapstructure:"pool_size"`
	QueueSize        int    `mapstructure:"queue_size"`
	GeocodePoolSize  int    `mapstructure:"geocode_pool_size"`
	GeocodeQueueSize int    `mapstructure:"geocode_queue_size"`
	TokenBackend     string `mapstructure:"token_backend"` // memory | redis
}

type FetchConfig struct {
	Timeout       time.Duration `mapstructure:"timeout"`
	RenderTimeout time.Duration `mapstructure:"render_timeout"`
	UserAgent     string        `mapstructure:"user_agent"`
	PerHostRPS    float64       `mapstructure:"per_host_rps"`
	MaxBodyBytes  int64         `mapstructure:"max_body_bytes"`
}

type GeocodeConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
	Email   string        `mapstructure:"email"`
}

type AlertsConfig struct {
	Window  time.Duration `mapstructure:"window"`
	Cap     int           `mapstructure:"cap"`
	Subject string        `mapstructure:"subject"`
	Workers int           `mapstructure:"workers"`
}

type NotifyConfig struct {
	Driver          string        `mapstructure:"driver"` // log | ses
	From            string        `mapstructure:"from"`
	Region          string        `mapstructure:"region"`
	AccessKeyID     string        `mapstructure:"access_key_id"`
	SecretAccessKey string        `mapstructure:"secret_access_key"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TokenTTL time.Duration `mapstructure:"token_ttl"`
}

type NormalizeConfig struct {
	Gazetteer []string `mapstructure:"gazetteer"`
}

type Config struct {
	Debug     bool            `mapstructure:"debug"`
	SentryDSN string          `mapstructure:"sentry_dsn"`
	App       AppConfig       `mapstructure:"app"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Dispatch  DispatchConfig  `mapstructure:"dispatch"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Geocode   GeocodeConfig   `mapstructure:"geocode"`
	Alerts    AlertsConfig    `mapstructure:"alerts"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Normalize NormalizeConfig `mapstructure:"normalize"`
}

// DefaultGazetteer is the built-in list of known cities.
var DefaultGazetteer = []string{
	"Douala", "Yaoundé", "Bamenda", "Bafoussam", "Garoua", "Maroua", "Ngaoundéré",
}

// Load reads configFile (or config.yml from the usual places when empty),
// overlaid by .env files in envPath and ASTREMINA_* environment variables.
func Load(configFile, envPath string) (*Config, error) {
	v := configureViper(configFile, envPath)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	out, res := NormalizeAndValidate(cfg)
	if !res.OK() {
		return nil, errors.New("config validation failed:\n- " + strings.Join(res.Errors, "\n- "))
	}
	return &out, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.port", 38471)
	v.SetDefault("app.currency", "XAF")
	v.SetDefault("app.site_url", "http://localhost:8000")
	v.SetDefault("app.timezone", "Africa/Douala")
	v.SetDefault("app.country", "Cameroon")

	v.SetDefault("scheduler.tick", "1m")
	v.SetDefault("scheduler.default_source_interval", "24h")
	v.SetDefault("scheduler.alerts_interval", "24h")
	v.SetDefault("scheduler.contracts_interval", "1h")
	v.SetDefault("scheduler.stats_interval", "24h")
	v.SetDefault("scheduler.stale_run_after", "2h")

	v.SetDefault("dispatch.pool_size", 4)
	v.SetDefault("dispatch.queue_size", 64)
	v.SetDefault("dispatch.geocode_pool_size", 1)
	v.SetDefault("dispatch.geocode_queue_size", 256)
	v.SetDefault("dispatch.token_backend", "memory")

	v.SetDefault("fetch.timeout", "30s")
	v.SetDefault("fetch.render_timeout", "45s")
	v.SetDefault("fetch.user_agent", "astremina-ingest/1.0")
	v.SetDefault("fetch.per_host_rps", 1.0)
	v.SetDefault("fetch.max_body_bytes", 8<<20)

	v.SetDefault("geocode.enabled", true)
	v.SetDefault("geocode.base_url", "https://nominatim.openstreetmap.org")
	v.SetDefault("geocode.timeout", "10s")

	v.SetDefault("alerts.window", "24h")
	v.SetDefault("alerts.cap", 10)
	v.SetDefault("alerts.subject", "New Properties Matching Your Alert")
	v.SetDefault("alerts.workers", 4)

	v.SetDefault("notify.driver", "log")
	v.SetDefault("notify.from", "alerts@astremina.local")
	v.SetDefault("notify.timeout", "15s")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.token_ttl", "2h")

	v.SetDefault("normalize.gazetteer", DefaultGazetteer)
}

func configureViper(configFile, envPath string) *viper.Viper {
	v := viper.New()

	loadEnv(envPath)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("config/")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv alone does not reach keys missing from the file.
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}
	return v
}

var envKeys = []string{
	"debug", "sentry_dsn",
	"app.port", "app.data_dir", "app.currency", "app.site_url", "app.timezone", "app.country",
	"scheduler.tick", "scheduler.default_source_interval", "scheduler.alerts_interval",
	"scheduler.contracts_interval", "scheduler.stats_interval", "scheduler.stale_run_after",
	"dispatch.pool_size", "dispatch.queue_size", "dispatch.geocode_pool_size",
	"dispatch.geocode_queue_size", "dispatch.token_backend",
	"fetch.timeout", "fetch.render_timeout", "fetch.user_agent", "fetch.per_host_rps", "fetch.max_body_bytes",
	"geocode.enabled", "geocode.base_url", "geocode.timeout", "geocode.email",
	"alerts.window", "alerts.cap", "alerts.subject", "alerts.workers",
	"notify.driver", "notify.from", "notify.region", "notify.access_key_id",
	"notify.secret_access_key", "notify.timeout",
	"redis.addr", "redis.password", "redis.db", "redis.token_ttl",
}

// loadEnv applies .env then .env.local; later files win.
func loadEnv(envPath string) {
	if envPath == "" {
		envPath = "."
	}
	for _, name := range []string{".env", ".env.local"} {
		_ = godotenv.Overload(filepath.Join(envPath, name))
	}
}

// Location returns the configured timezone, falling back to UTC.
func (c Config) Location() *time.Location {
	if loc, err := time.LoadLocation(c.App.Timezone); err == nil {
		return loc
	}
	return time.UTC
}
