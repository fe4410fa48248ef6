// internal/common/config/config.go
package config

import "time"

// Config is the main application configuration struct.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Server   ServerConfig   `mapstructure:"server"`
	Supabase SupabaseConfig `mapstructure:"supabase"`
	Store    StoreConfig    `mapstructure:"store"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Scrapers ScrapersConfig `mapstructure:"scrapers"`
	Agent    AgentConfig    `mapstructure:"agent"`
	GenAI    GenAIConfig    `mapstructure:"genai"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Address        string `mapstructure:"address"`
	ReadTimeout    int    `mapstructure:"read_timeout"`    // milliseconds
	WriteTimeout   int    `mapstructure:"write_timeout"`   // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
	// TrustedProxies are CIDR ranges whose X-Forwarded-For header is believed.
	TrustedProxies []string `mapstructure:"trusted_proxies"`
}

// SupabaseConfig holds the hosted database endpoint and service credential.
// Both values are mandatory.
type SupabaseConfig struct {
	URL            string `mapstructure:"url"`
	ServiceRoleKey string `mapstructure:"service_role_key"`
	Schema         string `mapstructure:"schema"`
	Timeout        int    `mapstructure:"timeout"` // milliseconds
}

const (
	StoreDriverREST     = "rest"
	StoreDriverPostgres = "postgres"
)

type StoreConfig struct {
	Driver   string         `mapstructure:"driver"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type PostgresConfig struct {
	DSN            string `mapstructure:"dsn"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
}

type RedisConfig struct {
	Address            string `mapstructure:"address"`
	Password           string `mapstructure:"password"`
	DB                 int    `mapstructure:"db"`
	RateLimitPerMinute int    `mapstructure:"rate_limit_per_minute"`
}

// ScrapersConfig holds the public report sites scraped for petition counts.
type ScrapersConfig struct {
	BaseURL           string `mapstructure:"base_url"`
	TopEmployersPath  string `mapstructure:"top_employers_path"`
	DisclosurePageURL string `mapstructure:"disclosure_page_url"`
	UserAgent         string `mapstructure:"user_agent"`
	Timeout           int    `mapstructure:"timeout"` // milliseconds
}

type AgentConfig struct {
	DefaultLimit    int `mapstructure:"default_limit"`
	SampleLimit     int `mapstructure:"sample_limit"`
	DispatchTimeout int `mapstructure:"dispatch_timeout"` // milliseconds
}

// GenAIConfig enables the LLM answer for unrecognized questions when APIKey is set.
type GenAIConfig struct {
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	Timeout int    `mapstructure:"timeout"` // milliseconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}
