package routeintent

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	apperrors "lca-assistant/internal/common/errors"
	"lca-assistant/internal/common/logger"
	"lca-assistant/internal/common/metrics"
	"lca-assistant/internal/models"
	llmfallback "lca-assistant/internal/workers/ai-conversation/llm-fallback"
)

const (
	TaskType = "route-intent"
)

var sourceLabels = map[string]string{
	SourceFilings:        "LCA filing records",
	SourceSchoolCounts:   "school petition counts",
	SourceEmployerCounts: "employer petition counts",
	SourceTopEmployers:   "the top sponsor report",
}

// Handler classifies one chat message, calls the data sources its intent
// needs and composes the reply. It keeps no state between messages.
type Handler struct {
	config   *Config
	filings  FilingsService
	scraper  CountScraper
	fallback FallbackAnswerer
	logger   logger.Logger
	now      func() time.Time
}

// NewHandler accepts a nil fallback, in which case unrecognized messages get
// the static help text.
func NewHandler(config *Config, filings FilingsService, scraper CountScraper, fallback FallbackAnswerer, log logger.Logger) *Handler {
	return &Handler{
		config:   config,
		filings:  filings,
		scraper:  scraper,
		fallback: fallback,
		logger:   log.With(map[string]interface{}{"component": TaskType}),
		now:      time.Now,
	}
}

// Route answers message. Collaborator failures yield a partial Result; the
// only error is a blank message.
func (h *Handler) Route(ctx context.Context, message string) (*Result, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, apperrors.NewValidationError("message", "message must not be empty")
	}

	intent := Classify(message)
	slots := ExtractSlots(intent, message, h.now())
	metrics.ChatIntents.WithLabelValues(string(intent)).Inc()

	result := h.Dispatch(ctx, intent, slots, message)

	h.logger.Info("message routed", map[string]interface{}{
		"intent":        string(intent),
		"sourceCount":   len(result.Sources),
		"partial":       result.Partial,
		"clarification": result.Clarification,
	})
	return result, nil
}

// Dispatch runs intent with already extracted slots. message is only used
// by the fallback answer.
func (h *Handler) Dispatch(ctx context.Context, intent Intent, slots Slots, message string) *Result {
	result := &Result{
		Intent:  intent,
		Slots:   slots,
		Sources: make([]string, 0),
	}

	if question := clarificationFor(intent, slots); question != "" {
		result.Clarification = true
		result.Answer = question
		return result
	}

	if h.config.DispatchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.config.DispatchTimeout)
		defer cancel()
	}

	switch intent {
	case IntentSchoolCount:
		h.dispatchSchoolCount(ctx, result)
	case IntentEmployerCount:
		h.dispatchEmployerCount(ctx, result)
	case IntentTopEmployers:
		h.dispatchTopEmployers(ctx, result)
	case IntentCaseLookup:
		h.dispatchCaseLookup(ctx, result)
	case IntentWageSearch:
		h.dispatchWageSearch(ctx, result)
	case IntentCitySearch:
		h.dispatchCitySearch(ctx, result)
	case IntentTitleSearch:
		h.dispatchTitleSearch(ctx, result)
	case IntentSampleFilings:
		h.dispatchSampleFilings(ctx, result)
	default:
		result.Intent = IntentFallback
		result.Answer = h.fallbackAnswer(ctx, message)
	}
	return result
}

func clarificationFor(intent Intent, slots Slots) string {
	switch {
	case intent == IntentSchoolCount && slots.School == "":
		return `Which school do you mean? For example: "How many students from University of Michigan got H-1B last year?"`
	case intent == IntentEmployerCount && slots.Employer == "":
		return `Which employer do you mean? For example: "How many H-1B petitions did Google file in FY2024?"`
	case intent == IntentCaseLookup && slots.CaseNumber == "":
		return "Please include the case number, for example I-200-24001-123456."
	case intent == IntentWageSearch && slots.Wage <= 0:
		return `What salary should I search for? For example: "Jobs paying over $120k" or "jobs under $80k".`
	case intent == IntentCitySearch && slots.City == "":
		return `Which city do you mean? For example: "Show LCA filings in Seattle".`
	case intent == IntentTitleSearch && slots.JobTitle == "":
		return `Which job title should I look for? For example: "Jobs for data scientists".`
	}
	return ""
}

func (h *Handler) dispatchSchoolCount(ctx context.Context, result *Result) {
	school := result.Slots.School
	records, err := h.scraper.FetchSchoolCounts(ctx, school, result.Slots.FiscalYear)
	if err != nil {
		h.sourceFailed(result, SourceSchoolCounts, err)
		result.Answer = unavailableAnswer(result.UnavailableSources)
		return
	}

	addSource(result, h.scraper.SchoolURL(school))
	result.Answer = composeCounts(school, records, result.Slots.FiscalYear)
}

func (h *Handler) dispatchEmployerCount(ctx context.Context, result *Result) {
	employer := result.Slots.Employer

	var (
		counts     []models.CountRecord
		countsErr  error
		filings    []models.JoinedRecord
		filingsErr error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		counts, countsErr = h.scraper.FetchEmployerCounts(gctx, employer, result.Slots.FiscalYear)
		return nil
	})
	g.Go(func() error {
		filings, filingsErr = h.filings.FindByEmployer(gctx, employer, h.config.SampleLimit)
		return nil
	})
	// Both calls report through their own error values.
	_ = g.Wait()

	var sections []string
	if countsErr != nil {
		h.sourceFailed(result, SourceEmployerCounts, countsErr)
	} else {
		addSource(result, h.scraper.EmployerURL(employer))
		sections = append(sections, composeCounts(employer, counts, result.Slots.FiscalYear))
	}
	if filingsErr != nil {
		h.sourceFailed(result, SourceFilings, filingsErr)
	} else {
		addSource(result, h.config.FilingsSourceURL)
		sections = append(sections, composeFilings(
			fmt.Sprintf("Recent LCA filings for %s:", employer),
			fmt.Sprintf("No LCA filings on record for %s.", employer),
			filings,
		))
	}

	if len(sections) == 0 {
		result.Answer = unavailableAnswer(result.UnavailableSources)
		return
	}
	if result.Partial {
		sections = append(sections, unavailableNote(result.UnavailableSources))
	}
	result.Answer = strings.Join(sections, "\n\n")
}

func (h *Handler) dispatchTopEmployers(ctx context.Context, result *Result) {
	records, err := h.scraper.FetchTopEmployers(ctx, result.Slots.FiscalYear)
	if err != nil {
		h.sourceFailed(result, SourceTopEmployers, err)
		result.Answer = unavailableAnswer(result.UnavailableSources)
		return
	}

	addSource(result, h.scraper.TopEmployersURL())
	if len(records) == 0 {
		result.Answer = "The top sponsor report has no entries" + yearSuffix(result.Slots.FiscalYear) + "."
		return
	}

	limit := h.config.SampleLimit
	if limit <= 0 || limit > len(records) {
		limit = len(records)
	}

	var b strings.Builder
	b.WriteString("Top H-1B sponsors" + yearSuffix(result.Slots.FiscalYear) + ":")
	for i, r := range records[:limit] {
		fmt.Fprintf(&b, "\n%d. %s: %s petitions", i+1, r.Name, humanize.Comma(int64(r.Count)))
	}
	result.Answer = b.String()
}

func (h *Handler) dispatchCaseLookup(ctx context.Context, result *Result) {
	caseNumber := result.Slots.CaseNumber
	record, err := h.filings.FindByCaseNumber(ctx, caseNumber)
	if err != nil {
		h.sourceFailed(result, SourceFilings, err)
		result.Answer = unavailableAnswer(result.UnavailableSources)
		return
	}

	addSource(result, h.config.FilingsSourceURL)
	if record == nil {
		result.Answer = fmt.Sprintf("No LCA filing found for case %s.", caseNumber)
		return
	}
	result.Answer = "Case " + describeFiling(*record) + "."
}

func (h *Handler) dispatchWageSearch(ctx context.Context, result *Result) {
	wage := formatMoney(result.Slots.Wage)
	bound := "at least"
	search := h.filings.FindHighWage
	if result.Slots.WageBound == WageAtMost {
		bound = "at most"
		search = h.filings.FindLowWage
	}

	records, err := search(ctx, result.Slots.Wage, h.config.SampleLimit)
	if err != nil {
		h.sourceFailed(result, SourceFilings, err)
		result.Answer = unavailableAnswer(result.UnavailableSources)
		return
	}

	addSource(result, h.config.FilingsSourceURL)
	result.Answer = composeFilings(
		fmt.Sprintf("LCA filings with a prevailing wage of %s %s:", bound, wage),
		fmt.Sprintf("No LCA filings found with a prevailing wage of %s %s.", bound, wage),
		records,
	)
}

func (h *Handler) dispatchCitySearch(ctx context.Context, result *Result) {
	city := result.Slots.City
	h.listFilings(ctx, result,
		func(ctx context.Context) ([]models.JoinedRecord, error) {
			return h.filings.FindByCity(ctx, city, h.config.SampleLimit)
		},
		fmt.Sprintf("LCA filings with a worksite in %s:", city),
		fmt.Sprintf("No LCA filings found with a worksite in %s.", city),
	)
}

func (h *Handler) dispatchTitleSearch(ctx context.Context, result *Result) {
	title := result.Slots.JobTitle
	h.listFilings(ctx, result,
		func(ctx context.Context) ([]models.JoinedRecord, error) {
			return h.filings.FindByJobTitle(ctx, title, h.config.SampleLimit)
		},
		fmt.Sprintf("LCA filings for %s roles:", title),
		fmt.Sprintf("No LCA filings found for %s roles.", title),
	)
}

func (h *Handler) dispatchSampleFilings(ctx context.Context, result *Result) {
	h.listFilings(ctx, result, h.filings.Sample, "Sample LCA filings:", "No LCA filings are on record yet.")
}

func (h *Handler) listFilings(ctx context.Context, result *Result, find func(context.Context) ([]models.JoinedRecord, error), header, empty string) {
	records, err := find(ctx)
	if err != nil {
		h.sourceFailed(result, SourceFilings, err)
		result.Answer = unavailableAnswer(result.UnavailableSources)
		return
	}

	addSource(result, h.config.FilingsSourceURL)
	result.Answer = composeFilings(header, empty, records)
}

func (h *Handler) fallbackAnswer(ctx context.Context, message string) string {
	if h.fallback == nil {
		return llmfallback.HelpText
	}
	return h.fallback.Answer(ctx, message).Text
}

func (h *Handler) sourceFailed(result *Result, source string, err error) {
	metrics.DispatchFailures.WithLabelValues(source).Inc()
	h.logger.Warn("data source unavailable", map[string]interface{}{
		"intent":    string(result.Intent),
		"source":    source,
		"errorCode": string(apperrors.Code(err)),
		"error":     err.Error(),
	})
	result.Partial = true
	result.UnavailableSources = append(result.UnavailableSources, source)
}

func addSource(result *Result, url string) {
	if url == "" {
		return
	}
	for _, s := range result.Sources {
		if s == url {
			return
		}
	}
	result.Sources = append(result.Sources, url)
}

func composeCounts(name string, records []models.CountRecord, fiscalYear int) string {
	if len(records) == 0 {
		return fmt.Sprintf("No H-1B petition counts were found for %s%s.", name, yearSuffix(fiscalYear))
	}
	if len(records) == 1 {
		r := records[0]
		year := fiscalYear
		if r.FiscalYear != 0 {
			year = r.FiscalYear
		}
		return fmt.Sprintf("%s: %s H-1B petitions%s.", name, humanize.Comma(int64(r.Count)), yearSuffix(year))
	}

	var b strings.Builder
	b.WriteString("H-1B petition counts for " + name + ":")
	for _, r := range records {
		label := r.Name
		if r.FiscalYear != 0 {
			label = fmt.Sprintf("FY%d", r.FiscalYear)
		}
		fmt.Fprintf(&b, "\n- %s: %s", label, humanize.Comma(int64(r.Count)))
	}
	return b.String()
}

func composeFilings(header, empty string, records []models.JoinedRecord) string {
	if len(records) == 0 {
		return empty
	}
	var b strings.Builder
	b.WriteString(header)
	for _, r := range records {
		b.WriteString("\n- " + describeFiling(r))
	}
	return b.String()
}

func describeFiling(r models.JoinedRecord) string {
	s := fmt.Sprintf("%s: %s, %s", r.CaseNumber, r.EmployerName, r.JobTitle)
	if r.WorksiteCity != "" {
		s += " in " + r.WorksiteCity
	}
	if r.PrevailingWage > 0 {
		s += ", prevailing wage " + formatMoney(r.PrevailingWage)
	}
	return s
}

func unavailableAnswer(sources []string) string {
	return "Sorry, " + joinLabels(sources) + " " + verbFor(sources) + " unavailable right now. Please try again later."
}

func unavailableNote(sources []string) string {
	return "Note: " + joinLabels(sources) + " " + verbFor(sources) + " unavailable right now, so this answer is incomplete."
}

func joinLabels(sources []string) string {
	labels := make([]string, 0, len(sources))
	for _, s := range sources {
		label, ok := sourceLabels[s]
		if !ok {
			label = s
		}
		labels = append(labels, label)
	}
	return strings.Join(labels, " and ")
}

func verbFor(sources []string) string {
	if len(sources) == 1 && !strings.HasSuffix(sourceLabels[sources[0]], "s") {
		return "is"
	}
	return "are"
}

func yearSuffix(fiscalYear int) string {
	if fiscalYear <= 0 {
		return ""
	}
	return fmt.Sprintf(" in FY%d", fiscalYear)
}

func formatMoney(v float64) string {
	return "$" + humanize.Comma(int64(math.Round(v)))
}
