// internal/workers/web-sources/scrape-counts/config.go
package scrapecounts

import "time"

type Config struct {
	BaseURL          string
	TopEmployersPath string
	Timeout          time.Duration
}

func LoadConfig() *Config {
	return &Config{
		BaseURL:          "https://www.myvisajobs.com",
		TopEmployersPath: "/reports/h1b/",
		Timeout:          8 * time.Second,
	}
}
