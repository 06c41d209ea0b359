package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Env      string `yaml:"env"`
	HTTPAddr string `yaml:"http_addr"`

	AppID           string   `yaml:"app_id"`
	AppSecret       string   `yaml:"app_secret"`
	IgnoreSignature bool     `yaml:"ignore_signature"`
	IgnorePaths     []string `yaml:"ignore_paths"`

	SessionTTL      time.Duration `yaml:"session_ttl"`
	OutboundTimeout time.Duration `yaml:"outbound_timeout"`
	CacheTimeout    time.Duration `yaml:"cache_timeout"`

	ExchangeURL           string `yaml:"exchange_url"`
	UserInfoURL           string `yaml:"userinfo_url"`
	UserInfoSigningSecret string `yaml:"userinfo_signing_secret"`
	UserInfoAudience      string `yaml:"userinfo_audience"`

	SessionStore   string   `yaml:"session_store"`
	RedisAddrs     []string `yaml:"redis_addrs"`
	RedisPassword  string   `yaml:"redis_password"`
	RedisDB        int      `yaml:"redis_db"`
	RedisKeyPrefix string   `yaml:"redis_key_prefix"`
	DatabaseDriver string   `yaml:"database_driver"`
	DatabaseURL    string   `yaml:"database_url"`

	SessionCleanupInterval time.Duration `yaml:"session_cleanup_interval"`

	VerifyRateLimitRPM int `yaml:"verify_rate_limit_rpm"`
	VerifyRateBurst    int `yaml:"verify_rate_burst"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	OTELServiceName           string        `yaml:"otel_service_name"`
	OTELEnvironment           string        `yaml:"otel_environment"`
	OTELExporterOTLPEndpoint  string        `yaml:"otel_exporter_otlp_endpoint"`
	OTELExporterOTLPInsecure  bool          `yaml:"otel_exporter_otlp_insecure"`
	OTELMetricsEnabled        bool          `yaml:"otel_metrics_enabled"`
	OTELTracingEnabled        bool          `yaml:"otel_tracing_enabled"`
	OTELLogsEnabled           bool          `yaml:"otel_logs_enabled"`
	OTELMetricsExportInterval time.Duration `yaml:"otel_metrics_export_interval"`
	OTELTraceSampleRatio      float64       `yaml:"otel_trace_sample_ratio"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

const (
	StoreRedis  = "redis"
	StoreSQL    = "sql"
	StoreMemory = "memory"
)

func Default() *Config {
	return &Config{
		Env:                       "development",
		HTTPAddr:                  ":8080",
		SessionTTL:                2 * time.Hour,
		OutboundTimeout:           3 * time.Second,
		CacheTimeout:              time.Second,
		ExchangeURL:               "https://api.weixin.qq.com/sns/jscode2session",
		UserInfoAudience:          "userinfo",
		SessionStore:              StoreRedis,
		RedisAddrs:                []string{"localhost:6379"},
		RedisKeyPrefix:            "weapp-session:",
		DatabaseDriver:            "postgres",
		SessionCleanupInterval:    10 * time.Minute,
		VerifyRateLimitRPM:        60,
		VerifyRateBurst:           10,
		LogLevel:                  "info",
		LogFormat:                 "json",
		OTELServiceName:           "weapp-session-service",
		OTELEnvironment:           "development",
		OTELExporterOTLPEndpoint:  "localhost:4317",
		OTELExporterOTLPInsecure:  true,
		OTELMetricsExportInterval: 10 * time.Second,
		OTELTraceSampleRatio:      1.0,
		ShutdownTimeout:           15 * time.Second,
	}
}

// Load builds the configuration from defaults, an optional YAML file named by
// CONFIG_FILE, an optional .env file, and the process environment, in that
// order of increasing precedence.
func Load() (*Config, error) {
	cfg, err := load()
	env, store := os.Getenv("APP_ENV"), os.Getenv("SESSION_STORE")
	if cfg != nil {
		env, store = cfg.Env, cfg.SessionStore
	}
	recordLoad(context.Background(), env, store, err)
	return cfg, err
}

func load() (*Config, error) {
	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load env file: %w", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Env, "APP_ENV")
	setString(&c.HTTPAddr, "HTTP_ADDR")
	setString(&c.AppID, "WEAPP_APP_ID")
	setString(&c.AppSecret, "WEAPP_APP_SECRET")
	setList(&c.IgnorePaths, "WEAPP_IGNORE_PATHS")
	setString(&c.ExchangeURL, "WEAPP_EXCHANGE_URL")
	setString(&c.UserInfoURL, "USERINFO_URL")
	setString(&c.UserInfoSigningSecret, "USERINFO_SIGNING_SECRET")
	setString(&c.UserInfoAudience, "USERINFO_AUDIENCE")
	setString(&c.SessionStore, "SESSION_STORE")
	setList(&c.RedisAddrs, "REDIS_ADDRS")
	setString(&c.RedisPassword, "REDIS_PASSWORD")
	setString(&c.RedisKeyPrefix, "REDIS_KEY_PREFIX")
	setString(&c.DatabaseDriver, "DATABASE_DRIVER")
	setString(&c.DatabaseURL, "DATABASE_URL")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.LogFormat, "LOG_FORMAT")
	setString(&c.OTELServiceName, "OTEL_SERVICE_NAME")
	setString(&c.OTELEnvironment, "OTEL_ENVIRONMENT")
	setString(&c.OTELExporterOTLPEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")

	parsers := []error{
		setBool(&c.IgnoreSignature, "WEAPP_IGNORE_SIGNATURE"),
		setDuration(&c.SessionTTL, "SESSION_TTL"),
		setDuration(&c.OutboundTimeout, "OUTBOUND_TIMEOUT"),
		setDuration(&c.CacheTimeout, "CACHE_TIMEOUT"),
		setInt(&c.RedisDB, "REDIS_DB"),
		setDuration(&c.SessionCleanupInterval, "SESSION_CLEANUP_INTERVAL"),
		setInt(&c.VerifyRateLimitRPM, "VERIFY_RATE_LIMIT_RPM"),
		setInt(&c.VerifyRateBurst, "VERIFY_RATE_BURST"),
		setBool(&c.OTELExporterOTLPInsecure, "OTEL_EXPORTER_OTLP_INSECURE"),
		setBool(&c.OTELMetricsEnabled, "OTEL_METRICS_ENABLED"),
		setBool(&c.OTELTracingEnabled, "OTEL_TRACING_ENABLED"),
		setBool(&c.OTELLogsEnabled, "OTEL_LOGS_ENABLED"),
		setDuration(&c.OTELMetricsExportInterval, "OTEL_METRICS_EXPORT_INTERVAL"),
		setFloat(&c.OTELTraceSampleRatio, "OTEL_TRACE_SAMPLE_RATIO"),
		setDuration(&c.ShutdownTimeout, "SHUTDOWN_TIMEOUT"),
	}
	return errors.Join(parsers...)
}

func (c *Config) Validate() error {
	if c.AppID == "" {
		return errors.New("WEAPP_APP_ID is required")
	}
	if !c.IgnoreSignature && c.AppSecret == "" {
		return errors.New("WEAPP_APP_SECRET is required unless signature checking is disabled")
	}
	if c.UserInfoURL == "" {
		return errors.New("USERINFO_URL is required")
	}
	if !strings.HasPrefix(c.UserInfoURL, "http://") && !strings.HasPrefix(c.UserInfoURL, "https://") {
		return errors.New("USERINFO_URL must be an HTTP(S) URL")
	}
	if c.SessionTTL <= 0 {
		return errors.New("SESSION_TTL must be positive")
	}
	if c.OutboundTimeout <= 0 {
		return errors.New("OUTBOUND_TIMEOUT must be positive")
	}
	if c.CacheTimeout <= 0 {
		return errors.New("CACHE_TIMEOUT must be positive")
	}
	switch c.SessionStore {
	case StoreRedis:
		if len(c.RedisAddrs) == 0 {
			return errors.New("REDIS_ADDRS is required for the redis session store")
		}
	case StoreSQL:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the sql session store")
		}
		if c.DatabaseDriver != "postgres" && c.DatabaseDriver != "sqlite" {
			return fmt.Errorf("DATABASE_DRIVER %q is not supported", c.DatabaseDriver)
		}
		if c.SessionCleanupInterval <= 0 {
			return errors.New("SESSION_CLEANUP_INTERVAL must be positive")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("SESSION_STORE %q is not supported", c.SessionStore)
	}
	if c.VerifyRateLimitRPM < 0 || c.VerifyRateBurst < 0 {
		return errors.New("verify rate limit values must not be negative")
	}
	if c.OTELTraceSampleRatio < 0 || c.OTELTraceSampleRatio > 1 {
		return errors.New("OTEL_TRACE_SAMPLE_RATIO must be within [0,1]")
	}
	return nil
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		*dst = strings.TrimSpace(v)
	}
}

func setList(dst *[]string, key string) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	*dst = out
}

func setBool(dst *bool, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	*dst = b
	return nil
}

func setInt(dst *int, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	*dst = n
	return nil
}

func setFloat(dst *float64, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	*dst = f
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		// Bare integers are seconds, matching the redis TTL convention.
		secs, intErr := strconv.Atoi(strings.TrimSpace(v))
		if intErr != nil {
			return fmt.Errorf("parse %s: %w", key, err)
		}
		d = time.Duration(secs) * time.Second
	}
	*dst = d
	return nil
}
