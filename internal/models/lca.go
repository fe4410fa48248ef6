// internal/models/lca.go
package models

// Table and column names of the hosted LCA dataset.
const (
	TableFilings   = "lca_filings"
	TableWorksites = "lca_worksites"

	ColCaseNumber     = "case_number"
	ColEmployerName   = "employer_name"
	ColJobTitle       = "job_title"
	ColWorksiteCity   = "worksite_city"
	ColPrevailingWage = "prevailing_wage"
)

// Filing is one labor condition application. Rows are read-only here.
type Filing struct {
	CaseNumber   string `json:"caseNumber"`
	EmployerName string `json:"employerName"`
	JobTitle     string `json:"jobTitle"`
}

// Worksite references a Filing by case number; a filing may have several.
type Worksite struct {
	CaseNumber     string  `json:"caseNumber"`
	City           string  `json:"city"`
	PrevailingWage float64 `json:"prevailingWage"`
}

// JoinedRecord is the filings-worksites projection returned by the data
// access service.
type JoinedRecord struct {
	CaseNumber     string  `json:"caseNumber"`
	EmployerName   string  `json:"employerName"`
	JobTitle       string  `json:"jobTitle"`
	WorksiteCity   string  `json:"worksiteCity"`
	PrevailingWage float64 `json:"prevailingWage"`
}

type EntityKind string

const (
	EntityEmployer EntityKind = "employer"
	EntitySchool   EntityKind = "school"
)

// CountRecord is one scraped petition count. FiscalYear is 0 when the page
// does not say which year a count belongs to.
type CountRecord struct {
	Kind       EntityKind `json:"kind"`
	Name       string     `json:"name"`
	FiscalYear int        `json:"fiscalYear,omitempty"`
	Count      int        `json:"count"`
	SourceURL  string     `json:"sourceUrl"`
}

// DisclosureFile is a quarterly LCA disclosure workbook published by DOL.
type DisclosureFile struct {
	FiscalYear int    `json:"fiscalYear"`
	Quarter    int    `json:"quarter"`
	FileName   string `json:"fileName"`
	URL        string `json:"url"`
}

// After reports whether d was published later than other.
func (d DisclosureFile) After(other DisclosureFile) bool {
	if d.FiscalYear != other.FiscalYear {
		return d.FiscalYear > other.FiscalYear
	}
	return d.Quarter > other.Quarter
}
