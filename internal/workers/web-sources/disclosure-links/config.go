// internal/workers/web-sources/disclosure-links/config.go
package disclosurelinks

import "time"

type Config struct {
	PageURL string
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		PageURL: "https://www.dol.gov/agencies/eta/foreign-labor/performance",
		Timeout: 30 * time.Second,
	}
}
