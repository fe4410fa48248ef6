// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	apperrors "lca-assistant/internal/common/errors"
)

// Load reads configs/config.yaml (optional), merges config.<env>.yaml,
// applies environment overrides and validates the result.
func Load() (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}
	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig() // ignore error if not found

	return finish(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finish(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

func finish(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults registers every key so AutomaticEnv can bind SUPABASE_URL style
// variables even when no config file exists.
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "lca-assistant")
	v.SetDefault("app.version", "dev")
	v.SetDefault("app.environment", "development")
	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.read_timeout", 10000)
	v.SetDefault("server.write_timeout", 30000)
	v.SetDefault("server.request_timeout", 25000)
	v.SetDefault("supabase.url", "")
	v.SetDefault("supabase.service_role_key", "")
	v.SetDefault("supabase.schema", "public")
	v.SetDefault("supabase.timeout", 10000)
	v.SetDefault("store.driver", StoreDriverREST)
	v.SetDefault("store.postgres.dsn", "")
	v.SetDefault("store.postgres.max_connections", 10)
	v.SetDefault("store.postgres.max_idle", 2)
	v.SetDefault("redis.address", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.rate_limit_per_minute", 30)
	v.SetDefault("scrapers.base_url", "https://www.myvisajobs.com")
	v.SetDefault("scrapers.top_employers_path", "/reports/h1b/")
	v.SetDefault("scrapers.disclosure_page_url", "https://www.dol.gov/agencies/eta/foreign-labor/performance")
	v.SetDefault("scrapers.user_agent", "Mozilla/5.0 (compatible; LCAAssistant/1.0)")
	v.SetDefault("scrapers.timeout", 8000)
	v.SetDefault("agent.default_limit", 10)
	v.SetDefault("agent.sample_limit", 10)
	v.SetDefault("agent.dispatch_timeout", 15000)
	v.SetDefault("genai.api_key", "")
	v.SetDefault("genai.model", "gemini-2.0-flash")
	v.SetDefault("genai.timeout", 20000)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// loadEnvFile loads .env from the working directory or the project root.
// Existing environment variables win.
func loadEnvFile() string {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// Find project root by looking for go.mod
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			expanded := os.ExpandEnv(strVal)
			if expanded != strVal {
				v.Set(key, expanded)
			}
		}
	}
}

// Direct override if config values are still empty after expansion
func overrideEmptyConfig(cfg *Config) {
	if cfg.Supabase.URL == "" {
		cfg.Supabase.URL = os.Getenv("SUPABASE_URL")
	}
	if cfg.Supabase.ServiceRoleKey == "" {
		cfg.Supabase.ServiceRoleKey = os.Getenv("SUPABASE_SERVICE_ROLE_KEY")
	}
	if cfg.Store.Postgres.DSN == "" {
		cfg.Store.Postgres.DSN = os.Getenv("SUPABASE_DB_URL")
	}
	if cfg.Redis.Address == "" {
		cfg.Redis.Address = os.Getenv("REDIS_ADDRESS")
	}
	if cfg.GenAI.APIKey == "" {
		cfg.GenAI.APIKey = os.Getenv("GENAI_API_KEY")
	}
	if len(cfg.Server.TrustedProxies) == 0 {
		if proxies := os.Getenv("TRUSTED_PROXIES"); proxies != "" {
			cfg.Server.TrustedProxies = strings.Split(proxies, ",")
		}
	}
	if port := os.Getenv("PORT"); port != "" && cfg.Server.Address == ":8000" {
		cfg.Server.Address = ":" + port
	}

	cfg.Supabase.URL = strings.TrimSpace(cfg.Supabase.URL)
	cfg.Supabase.ServiceRoleKey = strings.TrimSpace(cfg.Supabase.ServiceRoleKey)
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = StoreDriverREST
	}
	if cfg.Store.Postgres.MaxConnections == 0 {
		cfg.Store.Postgres.MaxConnections = 10
	}
	if cfg.Store.Postgres.MaxIdle == 0 {
		cfg.Store.Postgres.MaxIdle = 2
	}
	if cfg.Supabase.Schema == "" {
		cfg.Supabase.Schema = "public"
	}
	if cfg.Agent.DefaultLimit <= 0 {
		cfg.Agent.DefaultLimit = 10
	}
	if cfg.Agent.SampleLimit <= 0 {
		cfg.Agent.SampleLimit = cfg.Agent.DefaultLimit
	}
	if cfg.Agent.DispatchTimeout <= 0 {
		cfg.Agent.DispatchTimeout = 15000
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// validateConfig validates critical configuration fields
func validateConfig(cfg *Config) error {
	var missing []string
	if cfg.Supabase.URL == "" {
		missing = append(missing, "SUPABASE_URL")
	}
	if cfg.Supabase.ServiceRoleKey == "" {
		missing = append(missing, "SUPABASE_SERVICE_ROLE_KEY")
	}
	if len(missing) > 0 {
		return apperrors.NewConfigurationError("missing required environment variables: " + strings.Join(missing, ", "))
	}

	switch cfg.Store.Driver {
	case StoreDriverREST:
	case StoreDriverPostgres:
		if cfg.Store.Postgres.DSN == "" {
			return apperrors.NewConfigurationError("store.postgres.dsn (or SUPABASE_DB_URL) is required for the postgres driver")
		}
	default:
		return apperrors.NewConfigurationError(fmt.Sprintf("unknown store.driver %q", cfg.Store.Driver))
	}

	if cfg.Redis.RateLimitPerMinute < 0 {
		return apperrors.NewConfigurationError("redis.rate_limit_per_minute must not be negative")
	}
	return nil
}
