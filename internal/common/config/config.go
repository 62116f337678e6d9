package config

import (
	"os"
	"regexp"
	"time"

	"github.com/amoylab/osrf/pkg/helper"
	"github.com/amoylab/osrf/pkg/trace"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type (
	// OSRFConfig is the process configuration shared by the server, gateway and shell.
	OSRFConfig struct {
		RouterName string          `yaml:"router_name"` // name of the router that fronts every service
		Domain     string          `yaml:"domain"`      // bus domain, second part of every address
		Username   string          `yaml:"username"`    // bus user, first part of endpoint addresses
		PID        string          `yaml:"pid"`
		Transport  TransportConfig `yaml:"transport"`
		Client     ClientConfig    `yaml:"client"`
		Server     ServerConfig    `yaml:"server"`
		Gateway    GatewayConfig   `yaml:"gateway"`
		Cache      CacheConfig     `yaml:"cache"`
		Journal    DatabaseConfig  `yaml:"journal"`
		Logger     LoggerConfig    `yaml:"logger"`
		Metrics    MetricsConfig   `yaml:"metrics"`
		Tracing    trace.Config    `yaml:"tracing"`
		I18n       I18nConfig      `yaml:"i18n"`
	}

	// TransportConfig represents the message bus configuration
	TransportConfig struct {
		Type     string      `yaml:"type"`     // "memory" or "redis"
		Resource string      `yaml:"resource"` // resource prefix for endpoint addresses
		Buffer   int         `yaml:"buffer"`   // inbox size of in-memory endpoints
		Redis    RedisConfig `yaml:"redis"`
	}

	// RedisConfig represents a Redis connection, shared by transport and cache
	RedisConfig struct {
		ClusterType string `yaml:"cluster_type"` // single, sentinel or cluster
		Addr        string `yaml:"addr"`         // ";" or "," separated for sentinel/cluster
		MasterName  string `yaml:"master_name"`
		Username    string `yaml:"username"`
		Password    string `yaml:"password"`
		DB          int    `yaml:"db"`
		Prefix      string `yaml:"prefix"`
	}

	// ClientConfig holds the defaults applied to client sessions
	ClientConfig struct {
		Locale         string        `yaml:"locale"`
		Ingress        string        `yaml:"ingress"`
		ConnectTimeout time.Duration `yaml:"connect_timeout"`
		RequestTimeout time.Duration `yaml:"request_timeout"`
	}

	// ServerConfig represents a hosted service
	ServerConfig struct {
		Service     string        `yaml:"service"`
		Workers     int           `yaml:"workers"`
		Keepalive   time.Duration `yaml:"keepalive"`    // how long a connected session may stay idle
		MaxRequests int           `yaml:"max_requests"` // sessions served before a worker recycles its stack, 0 = never
	}

	// GatewayConfig represents the HTTP gateway configuration
	GatewayConfig struct {
		Port     int           `yaml:"port"`
		Workers  int           `yaml:"workers"` // size of the bus endpoint pool
		Timeout  time.Duration `yaml:"timeout"`
		CacheTTL time.Duration `yaml:"cache_ttl"` // lifetime of cached stateful thread routes
	}

	// CacheConfig represents the cache backend configuration
	CacheConfig struct {
		Type  string      `yaml:"type"` // "memory" or "redis"
		Redis RedisConfig `yaml:"redis"`
	}

	// DatabaseConfig represents the call journal database
	DatabaseConfig struct {
		Type     string `yaml:"type"`     // mysql, postgres, sqlite; empty disables the journal
		Host     string `yaml:"host"`     // localhost
		Port     int    `yaml:"port"`     // 3306 (for mysql), 5432 (for postgres)
		User     string `yaml:"user"`     // root (for mysql), postgres (for postgres)
		Password string `yaml:"password"` // password
		DBName   string `yaml:"dbname"`   // database name, file path for sqlite
		SSLMode  string `yaml:"sslmode"`  // disable (for postgres)
	}

	// MetricsConfig represents the prometheus configuration
	MetricsConfig struct {
		Enabled   bool      `yaml:"enabled"`
		Namespace string    `yaml:"namespace"`
		Port      int       `yaml:"port"`
		Path      string    `yaml:"path"`
		Buckets   []float64 `yaml:"buckets"`
	}

	// I18nConfig represents the internationalization configuration
	I18nConfig struct {
		Path string `yaml:"path"` // Path to i18n translation files
	}

	// LoggerConfig represents the logger configuration
	LoggerConfig struct {
		Level      string `yaml:"level"`       // debug, info, warn, error
		Format     string `yaml:"format"`      // json, console
		Output     string `yaml:"output"`      // stdout, file
		FilePath   string `yaml:"file_path"`   // path to log file when output is file
		MaxSize    int    `yaml:"max_size"`    // max size of log file in MB
		MaxBackups int    `yaml:"max_backups"` // max number of backup files
		MaxAge     int    `yaml:"max_age"`     // max age of backup files in days
		Compress   bool   `yaml:"compress"`    // whether to compress backup files
		Color      bool   `yaml:"color"`       // whether to use color in console output
		Stacktrace bool   `yaml:"stacktrace"`  // whether to include stacktrace in error logs
		TimeZone   string `yaml:"time_zone"`   // time zone for log timestamps, e.g., "UTC", default is local
		TimeFormat string `yaml:"time_format"` // time format for log timestamps, default is "2006-01-02 15:04:05"
	}
)

// LoadConfig loads configuration from a YAML file with environment variable support
func LoadConfig(filename string) (*OSRFConfig, string, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	cfgPath := helper.GetCfgPath(filename)
	data, err := os.ReadFile(cfgPath)
	if err != nil {
		return nil, cfgPath, err
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, cfgPath, err
	}
	return cfg, cfgPath, nil
}

// Parse decodes YAML content, resolving ${ENV:default} placeholders and applying defaults.
func Parse(data []byte) (*OSRFConfig, error) {
	data = resolveEnv(data)
	var cfg OSRFConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	SetDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults fills the zero values that have a protocol-wide default.
func SetDefaults(cfg *OSRFConfig) {
	if cfg.RouterName == "" {
		cfg.RouterName = "router"
	}
	if cfg.Domain == "" {
		cfg.Domain = "localhost"
	}
	if cfg.Username == "" {
		cfg.Username = "opensrf"
	}
	if cfg.Transport.Type == "" {
		cfg.Transport.Type = "memory"
	}
	if cfg.Transport.Resource == "" {
		cfg.Transport.Resource = "osrf"
	}
	if cfg.Transport.Buffer <= 0 {
		cfg.Transport.Buffer = 1024
	}
	if cfg.Client.Locale == "" {
		cfg.Client.Locale = "en-US"
	}
	if cfg.Client.Ingress == "" {
		cfg.Client.Ingress = "opensrf"
	}
	if cfg.Client.ConnectTimeout == 0 {
		cfg.Client.ConnectTimeout = 10 * time.Second
	}
	if cfg.Client.RequestTimeout == 0 {
		cfg.Client.RequestTimeout = 120 * time.Second
	}
	if cfg.Server.Workers <= 0 {
		cfg.Server.Workers = 1
	}
	if cfg.Server.Keepalive <= 0 {
		cfg.Server.Keepalive = 5 * time.Second
	}
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = 8080
	}
	if cfg.Gateway.Workers <= 0 {
		cfg.Gateway.Workers = 4
	}
	if cfg.Gateway.Timeout <= 0 {
		cfg.Gateway.Timeout = 120 * time.Second
	}
	if cfg.Gateway.CacheTTL <= 0 {
		cfg.Gateway.CacheTTL = 300 * time.Second
	}
	if cfg.Cache.Type == "" {
		cfg.Cache.Type = "memory"
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = "osrf"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

// resolveEnv replaces environment variable placeholders in YAML content
func resolveEnv(content []byte) []byte {
	regex := regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

	return regex.ReplaceAllFunc(content, func(match []byte) []byte {
		matches := regex.FindSubmatch(match)
		envKey := string(matches[1])
		var defaultValue string

		if len(matches) > 2 {
			defaultValue = string(matches[2])
		}

		if value, exists := os.LookupEnv(envKey); exists {
			return []byte(value)
		}
		return []byte(defaultValue)
	})
}
