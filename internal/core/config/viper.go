package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/solatis/mutguard/internal/core/logging"
	"github.com/spf13/viper"
)

// LoadConfig loads configuration from file using viper.
// CLI flags > environment > config file > defaults precedence.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// Bind environment variables with MG_ prefix
	v.SetEnvPrefix("MG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Load config file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := validateNoCredentialsInFile(configPath); err != nil {
			return nil, err
		}
	}

	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("guard.max_mutations", d.Guard.MaxMutations)
	v.SetDefault("guard.strict_mode", d.Guard.StrictMode)
	v.SetDefault("guard.track_history", d.Guard.TrackHistory)
	v.SetDefault("guard.allow_reset", d.Guard.AllowReset)
	v.SetDefault("guard.auto_freeze", d.Guard.AutoFreeze)
	v.SetDefault("guard.track_deep_mutations", d.Guard.TrackDeepMutations)
	v.SetDefault("guard.error_message", "")
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout.String())
	v.SetDefault("database.url", "")
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Guard: GuardConfig{
			MaxMutations:       v.GetInt("guard.max_mutations"),
			StrictMode:         v.GetBool("guard.strict_mode"),
			TrackHistory:       v.GetBool("guard.track_history"),
			AllowReset:         v.GetBool("guard.allow_reset"),
			AutoFreeze:         v.GetBool("guard.auto_freeze"),
			TrackDeepMutations: v.GetBool("guard.track_deep_mutations"),
			ErrorMessage:       v.GetString("guard.error_message"),
		},
		Server: ServerConfig{
			Host:            v.GetString("server.host"),
			Port:            v.GetInt("server.port"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
		},
		Database: DatabaseConfig{
			URL: v.GetString("database.url"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		APIKeys: apiKeysFromEnv(),
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validateConfig checks limit sign, port range, timeout and logger settings.
func validateConfig(cfg *Config) error {
	if cfg.Guard.MaxMutations < 0 {
		return fmt.Errorf("guard.max_mutations must be non-negative, got %d", cfg.Guard.MaxMutations)
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", cfg.Server.Port)
	}
	if cfg.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown_timeout must be positive, got %v", cfg.Server.ShutdownTimeout)
	}
	if _, err := logging.ParseLevel(cfg.Log.Level); err != nil {
		return err
	}
	switch strings.ToLower(cfg.Log.Format) {
	case logging.FormatJSON, logging.FormatConsole:
	default:
		return fmt.Errorf("log.format must be %s or %s, got %q", logging.FormatJSON, logging.FormatConsole, cfg.Log.Format)
	}
	return nil
}

// validateNoCredentialsInFile enforces environment-only database passwords
// (12-factor principle). Only the file is inspected, not the merged view.
func validateNoCredentialsInFile(configPath string) error {
	f := viper.New()
	f.SetConfigFile(configPath)
	if err := f.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if f.IsSet("api_key") || f.IsSet("api_keys") {
		return fmt.Errorf("API keys not allowed in config files (use MG_API_KEY or MG_API_KEY_1..N environment variables)")
	}
	raw := f.GetString("database.url")
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid database.url: %w", err)
	}
	if _, hasPassword := u.User.Password(); hasPassword {
		return fmt.Errorf("database passwords not allowed in config files (use MG_DATABASE_URL environment variable)")
	}
	return nil
}

// apiKeysFromEnv collects MG_API_KEY followed by MG_API_KEY_1, MG_API_KEY_2,
// ... up to the first gap.
func apiKeysFromEnv() []string {
	var keys []string
	if k := strings.TrimSpace(os.Getenv("MG_API_KEY")); k != "" {
		keys = append(keys, k)
	}
	for i := 1; ; i++ {
		k := strings.TrimSpace(os.Getenv("MG_API_KEY_" + strconv.Itoa(i)))
		if k == "" {
			break
		}
		keys = append(keys, k)
	}
	return keys
}
