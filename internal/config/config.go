package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Security  SecurityConfig  `mapstructure:"security"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Storage   StorageConfig   `mapstructure:"storage"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Webhook   WebhookConfig   `mapstructure:"webhook"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"`
	BaseURL      string        `mapstructure:"base_url"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type SecurityConfig struct {
	AdminPassword  string   `mapstructure:"admin_password"`
	JWTSecret      string   `mapstructure:"jwt_secret"`
	APIEnabled     bool     `mapstructure:"api_enabled"`
	EnableCORS     bool     `mapstructure:"enable_cors"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type LoggingConfig struct {
	Level         string `mapstructure:"level"`
	Output        string `mapstructure:"output"`
	ConsoleOutput bool   `mapstructure:"console_output"`
	MaxSize       int    `mapstructure:"max_size"`
	MaxBackups    int    `mapstructure:"max_backups"`
	MaxAge        int    `mapstructure:"max_age"`
	Compress      bool   `mapstructure:"compress"`
}

type StorageConfig struct {
	DataDir      string `mapstructure:"data_dir"`
	DatabasePath string `mapstructure:"database_path"`
}

// RateLimitConfig tunes the per-key fixed window. The window TTL is anchored
// at the first request, so bursts of up to 2x the limit are possible across a
// window boundary; that behavior is intentional.
type RateLimitConfig struct {
	RequestsPerHour int           `mapstructure:"requests_per_hour"`
	Window          time.Duration `mapstructure:"window"`
	Backend         string        `mapstructure:"backend"`
	FailOpen        bool          `mapstructure:"fail_open"`
	RedisAddr       string        `mapstructure:"redis_addr"`
	RedisPassword   string        `mapstructure:"redis_password"`
	RedisDB         int           `mapstructure:"redis_db"`
}

type WebhookConfig struct {
	URL         string        `mapstructure:"url"`
	Secret      string        `mapstructure:"secret"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	BackoffBase time.Duration `mapstructure:"backoff_base"`
	Async       bool          `mapstructure:"async"`
}

// Load loads the configuration from file and environment
func Load() (*Config, error) {
	var cfg Config

	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// LoadOrCreate loads the configuration, creating a default config file with
// generated secrets on first run.
func LoadOrCreate() (*Config, error) {
	configFile := viper.ConfigFileUsed()
	if configFile == "" {
		configFile = "./config.yaml"
	}

	if _, err := os.Stat(configFile); err == nil {
		cfg, err := Load()
		if err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", configFile, err)
		}
		return cfg, nil
	}

	fmt.Println("Config file not found, creating default config...")

	cfg := &Config{}
	setDefaults(cfg)
	cfg.Security.APIEnabled = true

	password := randomSecret(16)
	cfg.Security.AdminPassword = password
	cfg.Security.JWTSecret = randomSecret(32)
	cfg.Webhook.Secret = randomSecret(32)
	fmt.Printf("Generated admin password: %s\n", password)
	fmt.Println("Save this password; it is required for the admin API.")

	if err := SaveConfig(cfg); err != nil {
		fmt.Printf("Warning: failed to save config file: %v\n", err)
		fmt.Println("Continuing with in-memory config...")
	} else {
		fmt.Println("Config file created: config.yaml")
	}

	return cfg, nil
}

// SaveConfig writes the configuration back to the config file. Keys are set
// field by field: viper serializes whole structs under their Go field names,
// which Unmarshal cannot match back to the mapstructure tags on reload.
func SaveConfig(cfg *Config) error {
	viper.Set("server.host", cfg.Server.Host)
	viper.Set("server.port", cfg.Server.Port)
	viper.Set("server.mode", cfg.Server.Mode)
	viper.Set("server.base_url", cfg.Server.BaseURL)
	viper.Set("server.read_timeout", cfg.Server.ReadTimeout)
	viper.Set("server.write_timeout", cfg.Server.WriteTimeout)

	viper.Set("security.admin_password", cfg.Security.AdminPassword)
	viper.Set("security.jwt_secret", cfg.Security.JWTSecret)
	viper.Set("security.api_enabled", cfg.Security.APIEnabled)
	viper.Set("security.enable_cors", cfg.Security.EnableCORS)
	viper.Set("security.allowed_origins", cfg.Security.AllowedOrigins)

	viper.Set("logging.level", cfg.Logging.Level)
	viper.Set("logging.output", cfg.Logging.Output)
	viper.Set("logging.console_output", cfg.Logging.ConsoleOutput)
	viper.Set("logging.max_size", cfg.Logging.MaxSize)
	viper.Set("logging.max_backups", cfg.Logging.MaxBackups)
	viper.Set("logging.max_age", cfg.Logging.MaxAge)
	viper.Set("logging.compress", cfg.Logging.Compress)

	viper.Set("storage.data_dir", cfg.Storage.DataDir)
	viper.Set("storage.database_path", cfg.Storage.DatabasePath)

	viper.Set("rate_limit.requests_per_hour", cfg.RateLimit.RequestsPerHour)
	viper.Set("rate_limit.window", cfg.RateLimit.Window)
	viper.Set("rate_limit.backend", cfg.RateLimit.Backend)
	viper.Set("rate_limit.fail_open", cfg.RateLimit.FailOpen)
	viper.Set("rate_limit.redis_addr", cfg.RateLimit.RedisAddr)
	viper.Set("rate_limit.redis_password", cfg.RateLimit.RedisPassword)
	viper.Set("rate_limit.redis_db", cfg.RateLimit.RedisDB)

	viper.Set("webhook.url", cfg.Webhook.URL)
	viper.Set("webhook.secret", cfg.Webhook.Secret)
	viper.Set("webhook.timeout", cfg.Webhook.Timeout)
	viper.Set("webhook.max_attempts", cfg.Webhook.MaxAttempts)
	viper.Set("webhook.backoff_base", cfg.Webhook.BackoffBase)
	viper.Set("webhook.async", cfg.Webhook.Async)

	configPath := viper.ConfigFileUsed()
	if configPath == "" {
		configPath = "./config.yaml"
	}

	return viper.WriteConfigAs(configPath)
}

func randomSecret(bytes int) string {
	b := make([]byte, bytes)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("failed to read random bytes: %v", err))
	}
	return hex.EncodeToString(b)
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8090
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "release"
	}
	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		// Synchronous webhook delivery can add up to ~33s (3 tries at 10s
		// plus backoff) to a response.
		cfg.Server.WriteTimeout = 60 * time.Second
	}

	// api_enabled defaults to true; an explicit false in the config file must
	// survive, so only default it when the key is absent.
	if !viper.IsSet("security.api_enabled") {
		cfg.Security.APIEnabled = true
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "logs/pagebuilder.log"
	}
	// Same absent-vs-false distinction as api_enabled above.
	if !viper.IsSet("logging.console_output") {
		cfg.Logging.ConsoleOutput = true
	}
	if cfg.Logging.MaxSize == 0 {
		cfg.Logging.MaxSize = 100
	}
	if cfg.Logging.MaxBackups == 0 {
		cfg.Logging.MaxBackups = 10
	}
	if cfg.Logging.MaxAge == 0 {
		cfg.Logging.MaxAge = 30
	}

	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "./data"
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "./data/pagebuilder.db"
	}

	if cfg.RateLimit.RequestsPerHour == 0 {
		cfg.RateLimit.RequestsPerHour = 100
	}
	if cfg.RateLimit.Window == 0 {
		cfg.RateLimit.Window = time.Hour
	}
	if cfg.RateLimit.Backend == "" {
		cfg.RateLimit.Backend = "memory"
	}
	if cfg.RateLimit.RedisAddr == "" {
		cfg.RateLimit.RedisAddr = "127.0.0.1:6379"
	}

	if cfg.Webhook.Timeout == 0 {
		cfg.Webhook.Timeout = 10 * time.Second
	}
	if cfg.Webhook.MaxAttempts == 0 {
		cfg.Webhook.MaxAttempts = 3
	}
	if cfg.Webhook.BackoffBase == 0 {
		cfg.Webhook.BackoffBase = time.Second
	}
}

func validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", cfg.Server.Port)
	}
	if cfg.RateLimit.Backend != "memory" && cfg.RateLimit.Backend != "redis" {
		return fmt.Errorf("invalid rate limit backend: %s", cfg.RateLimit.Backend)
	}
	return nil
}
