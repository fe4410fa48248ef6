// internal/workers/ai-conversation/route-intent/config.go
package routeintent

import "time"

type Config struct {
	DispatchTimeout  time.Duration
	SampleLimit      int
	FilingsSourceURL string
}

func LoadConfig() *Config {
	return &Config{
		DispatchTimeout:  20 * time.Second,
		SampleLimit:      5,
		FilingsSourceURL: "https://www.dol.gov/agencies/eta/foreign-labor/performance",
	}
}
