// internal/workers/data-access/query-filings/config.go
package queryfilings

import "time"

type Config struct {
	Timeout      time.Duration
	DefaultLimit int
}

func LoadConfig() *Config {
	return &Config{
		Timeout:      30 * time.Second,
		DefaultLimit: DefaultSampleLimit,
	}
}
