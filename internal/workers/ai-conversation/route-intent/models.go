// internal/workers/ai-conversation/route-intent/models.go
package routeintent

import (
	"context"

	"lca-assistant/internal/models"
	llmfallback "lca-assistant/internal/workers/ai-conversation/llm-fallback"
)

type Intent string

const (
	IntentSchoolCount   Intent = "school-count"
	IntentEmployerCount Intent = "employer-count"
	IntentTopEmployers  Intent = "top-employers"
	IntentCaseLookup    Intent = "case-lookup"
	IntentWageSearch    Intent = "wage-search"
	IntentCitySearch    Intent = "city-search"
	IntentTitleSearch   Intent = "title-search"
	IntentSampleFilings Intent = "sample-filings"
	IntentFallback      Intent = "fallback"
)

// WageBound says which side of Slots.Wage the user asked for.
type WageBound string

const (
	WageAtLeast WageBound = "at-least"
	WageAtMost  WageBound = "at-most"
)

// Data source labels used in UnavailableSources and the dispatch failure metric.
const (
	SourceFilings        = "lca_filings"
	SourceSchoolCounts   = "school_counts"
	SourceEmployerCounts = "employer_counts"
	SourceTopEmployers   = "top_employers"
)

type Slots struct {
	School     string    `json:"school,omitempty"`
	Employer   string    `json:"employer,omitempty"`
	CaseNumber string    `json:"caseNumber,omitempty"`
	FiscalYear int       `json:"fiscalYear,omitempty"`
	City       string    `json:"city,omitempty"`
	JobTitle   string    `json:"jobTitle,omitempty"`
	Wage       float64   `json:"wage,omitempty"`
	WageBound  WageBound `json:"wageBound,omitempty"`
}

// Result is built per message and discarded once the reply is sent.
type Result struct {
	Intent             Intent   `json:"intent"`
	Slots              Slots    `json:"slots"`
	Answer             string   `json:"answer"`
	Sources            []string `json:"sources"`
	Partial            bool     `json:"partial"`
	Clarification      bool     `json:"clarification"`
	UnavailableSources []string `json:"unavailableSources,omitempty"`
}

type FilingsService interface {
	FindByCaseNumber(ctx context.Context, caseNumber string) (*models.JoinedRecord, error)
	FindByEmployer(ctx context.Context, employer string, limit int) ([]models.JoinedRecord, error)
	FindByCity(ctx context.Context, city string, limit int) ([]models.JoinedRecord, error)
	FindByJobTitle(ctx context.Context, title string, limit int) ([]models.JoinedRecord, error)
	FindHighWage(ctx context.Context, minWage float64, limit int) ([]models.JoinedRecord, error)
	FindLowWage(ctx context.Context, maxWage float64, limit int) ([]models.JoinedRecord, error)
	Sample(ctx context.Context) ([]models.JoinedRecord, error)
}

type CountScraper interface {
	FetchTopEmployers(ctx context.Context, fiscalYear int) ([]models.CountRecord, error)
	FetchEmployerCounts(ctx context.Context, employer string, fiscalYear int) ([]models.CountRecord, error)
	FetchSchoolCounts(ctx context.Context, school string, fiscalYear int) ([]models.CountRecord, error)
	TopEmployersURL() string
	EmployerURL(employer string) string
	SchoolURL(school string) string
}

type FallbackAnswerer interface {
	Answer(ctx context.Context, message string) llmfallback.Answer
}
