package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the process configuration. It is built once by Load and handed
// to components by value; nothing reads it through a global.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	DB       DBConfig       `yaml:"db"`
	Redis    RedisConfig    `yaml:"redis"`
	MQ       MQConfig       `yaml:"mq"`
	Outbox   OutboxConfig   `yaml:"outbox"`
	JWT      JWTConfig      `yaml:"jwt"`
	Google   GoogleConfig   `yaml:"google"`
	Gemini   GeminiConfig   `yaml:"gemini"`
	Triage   TriageConfig   `yaml:"triage"`
	Security SecurityConfig `yaml:"security"`
	Otel     OtelConfig     `yaml:"otel"`
	Log      LogConfig      `yaml:"log"`
}

// DBConfig holds the PostgreSQL connection settings.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
}

// DSN renders the pgx connection string with credentials escaped.
func (c DBConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:     "/" + c.Name,
		RawQuery: url.Values{"sslmode": {c.SSLMode}}.Encode(),
	}
	return u.String()
}

// MQConfig holds the RabbitMQ URL. Empty disables the retry pipeline.
type MQConfig struct {
	URL string `yaml:"url"`
}

// OutboxConfig tunes the worker's outbox dispatcher.
type OutboxConfig struct {
	MaxRetries int `yaml:"max_retries"`
	IntervalMS int `yaml:"interval_ms"`
	BatchSize  int `yaml:"batch_size"`
}

func (c OutboxConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMS) * time.Millisecond
}

// RedisConfig holds the Redis settings. Empty Addr disables the triage lock.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type JWTConfig struct {
	Secret   string `yaml:"secret"`
	TTLHours int    `yaml:"ttl_hours"`
}

func (c JWTConfig) TTL() time.Duration {
	return time.Duration(c.TTLHours) * time.Hour
}

type ServerConfig struct {
	Port      string `yaml:"port"`
	ClientURL string `yaml:"client_url"`
}

// GoogleConfig covers the OAuth client and the Gmail/Calendar calls made with it.
type GoogleConfig struct {
	ClientID       string `yaml:"client_id"`
	ClientSecret   string `yaml:"client_secret"`
	RedirectURL    string `yaml:"redirect_url"`
	TimeZone       string `yaml:"time_zone"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

func (c GoogleConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type GeminiConfig struct {
	APIKey         string `yaml:"api_key"`
	Model          string `yaml:"model"`
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

func (c GeminiConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// TriageConfig tunes inbox sync and AI enrichment.
type TriageConfig struct {
	ListQuery            string `yaml:"list_query"`
	MaxResults           int64  `yaml:"max_results"`
	BatchBodyLimit       int    `yaml:"batch_body_limit"`
	SingleBodyLimit      int    `yaml:"single_body_limit"`
	FetchConcurrency     int    `yaml:"fetch_concurrency"`
	LockTTLSeconds       int    `yaml:"lock_ttl_seconds"`
	RetryEnabled         bool   `yaml:"retry_enabled"`
	MaxRetries           int    `yaml:"max_retries"`
	EnrichTimeoutSeconds int    `yaml:"enrich_timeout_seconds"` // list-triggered triage outlives its request
}

func (c TriageConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

func (c TriageConfig) EnrichTimeout() time.Duration {
	return time.Duration(c.EnrichTimeoutSeconds) * time.Second
}

type SecurityConfig struct {
	// TokenKey seals OAuth tokens at rest. Empty stores them as plaintext.
	TokenKey string `yaml:"token_key"`
}

type OtelConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"`
	ServiceName string `yaml:"service_name"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Load reads config/<base,env>.yaml from configDir, applies environment
// overrides and defaults, and validates the result.
func Load(env, configDir string) (Config, error) {
	raw, err := LoadConfig(env, configDir)
	if err != nil {
		return Config{}, err
	}

	cfg, err := decode(raw)
	if err != nil {
		return Config{}, err
	}

	OverrideFromEnv(&cfg)
	ApplyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decode(raw map[string]interface{}) (Config, error) {
	var cfg Config
	data, err := yaml.Marshal(raw)
	if err != nil {
		return cfg, fmt.Errorf("failed to re-encode merged config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

// ApplyDefaults fills every unset tunable.
func ApplyDefaults(cfg *Config) {
	setString(&cfg.Server.Port, ":5000")
	setString(&cfg.Server.ClientURL, "http://localhost:5173")
	setInt(&cfg.DB.Port, 5432)
	setString(&cfg.DB.SSLMode, "disable")
	setInt(&cfg.JWT.TTLHours, 30*24)
	setInt(&cfg.Outbox.MaxRetries, 5)
	setInt(&cfg.Outbox.IntervalMS, 1000)
	setInt(&cfg.Outbox.BatchSize, 100)
	setString(&cfg.Google.RedirectURL, "http://localhost:5000/api/auth/google/callback")
	setString(&cfg.Google.TimeZone, "Asia/Kolkata")
	setInt(&cfg.Google.TimeoutSeconds, 20)
	setString(&cfg.Gemini.Model, "gemini-1.5-flash")
	setString(&cfg.Gemini.BaseURL, "https://generativelanguage.googleapis.com")
	setInt(&cfg.Gemini.TimeoutSeconds, 60)
	setString(&cfg.Triage.ListQuery, "in:inbox category:primary newer_than:7d")
	if cfg.Triage.MaxResults <= 0 {
		cfg.Triage.MaxResults = 25
	}
	setInt(&cfg.Triage.BatchBodyLimit, 4000)
	setInt(&cfg.Triage.SingleBodyLimit, 8000)
	setInt(&cfg.Triage.FetchConcurrency, 10)
	setInt(&cfg.Triage.LockTTLSeconds, 600)
	setInt(&cfg.Triage.MaxRetries, 5)
	setInt(&cfg.Triage.EnrichTimeoutSeconds, cfg.Gemini.TimeoutSeconds+30)
	setString(&cfg.Otel.ServiceName, "mailtriage")
	setString(&cfg.Log.Level, "info")
}

// Validate reports every missing required value at once.
func (c Config) Validate() error {
	var missing []string
	required := []struct {
		key   string
		value string
	}{
		{"jwt.secret", c.JWT.Secret},
		{"google.client_id", c.Google.ClientID},
		{"google.client_secret", c.Google.ClientSecret},
		{"gemini.api_key", c.Gemini.APIKey},
		{"db.host", c.DB.Host},
		{"db.name", c.DB.Name},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			missing = append(missing, r.key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	if c.Triage.RetryEnabled && c.MQ.URL == "" {
		return errors.New("triage.retry_enabled requires mq.url")
	}
	return nil
}

// OverrideFromEnv applies the environment on top of the YAML values.
func OverrideFromEnv(cfg *Config) {
	OverrideDBFromEnv(&cfg.DB)
	OverrideMQFromEnv(&cfg.MQ)
	OverrideRedisFromEnv(&cfg.Redis)
	OverrideJWTFromEnv(&cfg.JWT)
	OverrideServerFromEnv(&cfg.Server)
	OverrideGoogleFromEnv(&cfg.Google)
	OverrideGeminiFromEnv(&cfg.Gemini)

	if key := os.Getenv("TOKEN_ENCRYPTION_KEY"); key != "" {
		cfg.Security.TokenKey = key
	}
	if endpoint := os.Getenv("OTEL_ENDPOINT"); endpoint != "" {
		cfg.Otel.Endpoint = endpoint
		cfg.Otel.Enabled = true
	}
}

func OverrideDBFromEnv(cfg *DBConfig) {
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.Host = host
	}
	if port := os.Getenv("DB_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Port = p
		}
	}
	if user := os.Getenv("DB_USER"); user != "" {
		cfg.User = user
	}
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.Password = password
	}
	if name := os.Getenv("DB_NAME"); name != "" {
		cfg.Name = name
	}
}

func OverrideMQFromEnv(cfg *MQConfig) {
	if url := os.Getenv("MQ_URL"); url != "" {
		cfg.URL = url
	}
}

func OverrideRedisFromEnv(cfg *RedisConfig) {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Addr = addr
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.Password = password
	}
}

func OverrideJWTFromEnv(cfg *JWTConfig) {
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.Secret = secret
	}
}

// OverrideServerFromEnv accepts PORT as a bare number or SERVER_PORT as a listen address.
func OverrideServerFromEnv(cfg *ServerConfig) {
	if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.Port = port
	}
	if port := os.Getenv("PORT"); port != "" {
		if _, err := strconv.Atoi(port); err == nil {
			cfg.Port = ":" + port
		}
	}
	if url := os.Getenv("CLIENT_URL"); url != "" {
		cfg.ClientURL = url
	}
}

func OverrideGoogleFromEnv(cfg *GoogleConfig) {
	if id := os.Getenv("GOOGLE_CLIENT_ID"); id != "" {
		cfg.ClientID = id
	}
	if secret := os.Getenv("GOOGLE_CLIENT_SECRET"); secret != "" {
		cfg.ClientSecret = secret
	}
	if redirect := os.Getenv("GOOGLE_REDIRECT_URL"); redirect != "" {
		cfg.RedirectURL = redirect
	}
}

func OverrideGeminiFromEnv(cfg *GeminiConfig) {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		cfg.APIKey = key
	}
}

func setString(dst *string, def string) {
	if *dst == "" {
		*dst = def
	}
}

func setInt(dst *int, def int) {
	if *dst <= 0 {
		*dst = def
	}
}
