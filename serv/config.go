package serv

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/patel-ankitb/nestproject-sub000/core"
	"github.com/patel-ankitb/nestproject-sub000/serv/internal/util"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

const envPrefix = "TDB_"

type Core = core.Config

// Configuration for the data service
type Config struct {
	// Configuration for the data-access engine
	Core `mapstructure:",squash"`

	// Configuration for the HTTP service
	Serv `mapstructure:",squash"`

	hostPort string
	viper    *viper.Viper
}

// Configuration for the HTTP service
type Serv struct {
	// Application name is used in log messages
	AppName string `mapstructure:"app_name"`

	// When enabled the service runs with production defaults.
	// Config reloading is disabled and logs default to json.
	Production bool

	// The default path to find all configuration files
	ConfigPath string `mapstructure:"config_path"`

	// Logging level must be one of debug, error, warn, info
	LogLevel string `mapstructure:"log_level"`

	// Logging format: auto, json or simple
	LogFormat string `mapstructure:"log_format"`

	// The host and port the service runs on. Example localhost:8080
	HostPort string `mapstructure:"host_port"`

	// Host to run the service on
	Host string

	// Port to run the service on
	Port string

	// Enables HTTP compression
	HTTPGZip bool `mapstructure:"http_compress"`

	// Sets the API rate limits
	RateLimiter RateLimiter `mapstructure:"rate_limiter"`

	// Enables reloading the service on config changes. Disabled in production
	WatchAndReload bool `mapstructure:"reload_on_config_change"`

	// Sets the HTTP CORS Access-Control-Allow-Origin header
	AllowedOrigins []string `mapstructure:"cors_allowed_origins"`

	// Sets the HTTP CORS Access-Control-Allow-Headers header
	AllowedHeaders []string `mapstructure:"cors_allowed_headers"`

	// Enables debug logs for CORS
	DebugCORS bool `mapstructure:"cors_debug"`

	// Header carrying the tenant API key
	APIKeyHeader string `mapstructure:"api_key_header"`

	// Bearer token verification
	Auth Auth

	// Timeout used by the health check ping
	PingTimeout time.Duration `mapstructure:"ping_timeout"`

	Telemetry Telemetry
}

// Telemetry configures span export
type Telemetry struct {
	Tracing struct {
		// Exporter is the name of the tracing exporter to use. Example: otlp
		Exporter string

		// Endpoint to send the data to. Example: otel-collector:4318
		Endpoint string

		// Sample sets how many requests to sample for tracing: Example: 0.6
		Sample string

		// Insecure sends spans over plain HTTP
		Insecure bool
	}
}

// Auth configures bearer token verification
type Auth struct {
	JWT JWTConfig `mapstructure:"jwt"`
}

// JWTConfig holds the HMAC secret and expected issuer of bearer tokens.
// Without a secret bearer tokens are rejected.
type JWTConfig struct {
	Secret string
	Issuer string
}

// RateLimiter sets the API rate limits
type RateLimiter struct {
	// The number of events per second
	Rate float64

	// Bucket a burst of at most 'bucket' number of events
	Bucket int

	// The header that contains the client ip
	IPHeader string `mapstructure:"ip_header"`
}

// ReadInConfig function reads in the config file for the environment specified in the GO_ENV
// environment variable.
func ReadInConfig(configFile string) (*Config, error) {
	return readInConfig(configFile, nil)
}

// ReadInConfigFS is the same as ReadInConfig but it also takes a filesytem as an argument
func ReadInConfigFS(configFile string, fs afero.Fs) (*Config, error) {
	return readInConfig(configFile, fs)
}

func readInConfig(configFile string, fs afero.Fs) (*Config, error) {
	cp := filepath.Dir(configFile)
	vi := newViper(cp, filepath.Base(configFile))

	if fs != nil {
		vi.SetFs(fs)
	}

	if err := vi.ReadInConfig(); err != nil {
		return nil, err
	}

	if pcf := vi.GetString("inherits"); pcf != "" {
		cf := vi.ConfigFileUsed()
		vi = newViper(cp, pcf)
		if fs != nil {
			vi.SetFs(fs)
		}

		if err := vi.ReadInConfig(); err != nil {
			return nil, err
		}

		if value := vi.GetString("inherits"); value != "" {
			return nil, fmt.Errorf("inherited config '%s' cannot itself inherit '%s'", pcf, value)
		}

		vi.SetConfigFile(cf)

		if err := vi.MergeInConfig(); err != nil {
			return nil, err
		}
	}

	applyEnv(vi)

	c := &Config{viper: vi}
	if err := vi.Unmarshal(c); err != nil {
		return nil, fmt.Errorf("failed to decode config, %v", err)
	}
	c.ConfigPath = cp

	return c, nil
}

// NewConfig function creates a new configuration from the provided config string
func NewConfig(config, format string) (*Config, error) {
	if format == "" {
		format = "yaml"
	}

	vi := newViperWithDefaults()
	vi.SetConfigType(format)

	if err := vi.ReadConfig(strings.NewReader(config)); err != nil {
		return nil, err
	}

	applyEnv(vi)

	c := &Config{viper: vi}
	if err := vi.Unmarshal(c); err != nil {
		return nil, fmt.Errorf("failed to decode config, %v", err)
	}
	return c, nil
}

func applyEnv(vi *viper.Viper) {
	for _, e := range os.Environ() {
		if strings.HasPrefix(e, envPrefix) {
			kv := strings.SplitN(e, "=", 2)
			util.SetKeyValue(vi, kv[0], kv[1])
		}
	}
}

// newViperWithDefaults returns a new viper instance with the default settings
func newViperWithDefaults() *viper.Viper {
	vi := viper.New()

	vi.SetDefault("host_port", defaultHP)
	vi.SetDefault("log_level", "info")
	vi.SetDefault("log_format", "auto")
	vi.SetDefault("http_compress", true)
	vi.SetDefault("api_key_header", "X-API-Key")
	vi.SetDefault("ping_timeout", "5s")

	vi.SetDefault("central.config_collection", "appconfig")
	vi.SetDefault("central.apps_collection", "apps")
	vi.SetDefault("central.key_field", "apiKey")
	vi.SetDefault("default_limit", 10)
	vi.SetDefault("retry_attempts", 3)
	vi.SetDefault("retry_delay", "1s")
	vi.SetDefault("row_filter_mode", core.RowFilterMerge)

	vi.SetDefault("env", "development")

	vi.BindEnv("env", "GO_ENV") //nolint:errcheck
	vi.BindEnv("host", "HOST")  //nolint:errcheck
	vi.BindEnv("port", "PORT")  //nolint:errcheck

	return vi
}

// newViper returns a new viper instance with the default settings
func newViper(configPath, configFile string) *viper.Viper {
	vi := newViperWithDefaults()
	vi.SetConfigName(strings.TrimSuffix(configFile, filepath.Ext(configFile)))

	if configPath == "" {
		vi.AddConfigPath("./config")
	} else {
		vi.AddConfigPath(configPath)
	}

	return vi
}

// rateLimiterEnable returns true if the rate limiter is enabled
func (c *Config) rateLimiterEnable() bool {
	return c.RateLimiter.Rate > 0 && c.RateLimiter.Bucket > 0
}

// ShouldUseJSONLogs returns true if logs should be in JSON format.
// Returns true if log_format is "json" OR if log_format is "auto" and production mode is enabled.
func (c *Config) ShouldUseJSONLogs() bool {
	if c.LogFormat == "json" {
		return true
	}
	if c.LogFormat == "auto" && c.Serv.Production {
		return true
	}
	return false
}

// GetConfigName returns the name of the configuration
func GetConfigName() string {
	goEnv := strings.TrimSpace(strings.ToLower(os.Getenv("GO_ENV")))

	switch goEnv {
	case "production", "prod":
		return "prod"

	case "staging", "stage":
		return "stage"

	case "testing", "test":
		return "test"

	case "development", "dev", "":
		return "dev"

	default:
		return goEnv
	}
}
