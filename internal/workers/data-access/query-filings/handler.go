package queryfilings

import (
	"context"
	"fmt"
	"strings"

	apperrors "lca-assistant/internal/common/errors"
	"lca-assistant/internal/common/logger"
	"lca-assistant/internal/common/rowstore"
	"lca-assistant/internal/models"
)

const (
	TaskType = "query-filings"

	// DefaultSampleLimit is the sample size used when a caller has no preference.
	DefaultSampleLimit = 10
)

const (
	filingAlias   = "f"
	worksiteAlias = "w"
)

// Handler is the data access service over the filings and worksites tables.
type Handler struct {
	config *Config
	store  rowstore.Store
	logger logger.Logger
}

func NewHandler(config *Config, store rowstore.Store, log logger.Logger) *Handler {
	return &Handler{
		config: config,
		store:  store,
		logger: log.With(map[string]interface{}{"component": TaskType}),
	}
}

// GetJoinedSample returns up to limit joined filing/worksite records in the
// order the store provides them.
func (h *Handler) GetJoinedSample(ctx context.Context, limit int) ([]models.JoinedRecord, error) {
	return h.selectJoined(ctx, "get_joined_sample", limit)
}

// GetJoinedSampleAsync runs GetJoinedSample on its own goroutine. The channel
// receives exactly one result and is then closed.
func (h *Handler) GetJoinedSampleAsync(ctx context.Context, limit int) <-chan JoinedSampleResult {
	out := make(chan JoinedSampleResult, 1)
	go func() {
		defer close(out)
		records, err := h.GetJoinedSample(ctx, limit)
		out <- JoinedSampleResult{Records: records, Err: err}
	}()
	return out
}

// Sample returns a joined sample of the configured default size.
func (h *Handler) Sample(ctx context.Context) ([]models.JoinedRecord, error) {
	limit := h.config.DefaultLimit
	if limit <= 0 {
		limit = DefaultSampleLimit
	}
	return h.GetJoinedSample(ctx, limit)
}

// ExecuteCustomQuery passes statement to the store unchanged. It is not
// sanitized here; the store's read-only role is the only guard.
func (h *Handler) ExecuteCustomQuery(ctx context.Context, statement string) ([]rowstore.Row, error) {
	if strings.TrimSpace(statement) == "" {
		return nil, apperrors.NewValidationError("statement", "statement must not be empty")
	}

	ctx, cancel := h.withTimeout(ctx)
	defer cancel()

	rows, err := h.store.Raw(ctx, statement)
	if err != nil {
		h.logger.Error("custom query failed", map[string]interface{}{
			"operation": "execute_custom_query",
			"error":     err,
		})
		return nil, apperrors.NewQueryError(err)
	}
	return rows, nil
}

// FindByCaseNumber returns the filing with its first worksite, or nil when
// the case number is unknown.
func (h *Handler) FindByCaseNumber(ctx context.Context, caseNumber string) (*models.JoinedRecord, error) {
	caseNumber = strings.ToUpper(strings.TrimSpace(caseNumber))
	if caseNumber == "" {
		return nil, apperrors.NewValidationError("caseNumber", "case number is required")
	}

	records, err := h.selectJoined(ctx, "find_by_case_number", 1, rowstore.Filter{
		Table: filingAlias, Column: models.ColCaseNumber, Op: rowstore.OpEq, Value: caseNumber,
	})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

// FindByEmployer matches employer names case-insensitively by substring.
func (h *Handler) FindByEmployer(ctx context.Context, employer string, limit int) ([]models.JoinedRecord, error) {
	employer = strings.TrimSpace(employer)
	if employer == "" {
		return nil, apperrors.NewValidationError("employer", "employer is required")
	}
	return h.selectJoined(ctx, "find_by_employer", limit, rowstore.Filter{
		Table: filingAlias, Column: models.ColEmployerName, Op: rowstore.OpILike, Value: employer,
	})
}

func (h *Handler) FindByCity(ctx context.Context, city string, limit int) ([]models.JoinedRecord, error) {
	city = strings.TrimSpace(city)
	if city == "" {
		return nil, apperrors.NewValidationError("city", "city is required")
	}
	return h.selectJoined(ctx, "find_by_city", limit, rowstore.Filter{
		Table: worksiteAlias, Column: models.ColWorksiteCity, Op: rowstore.OpILike, Value: city,
	})
}

// FindByJobTitle matches job titles case-insensitively by substring.
func (h *Handler) FindByJobTitle(ctx context.Context, title string, limit int) ([]models.JoinedRecord, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, apperrors.NewValidationError("jobTitle", "job title is required")
	}
	return h.selectJoined(ctx, "find_by_job_title", limit, rowstore.Filter{
		Table: filingAlias, Column: models.ColJobTitle, Op: rowstore.OpILike, Value: title,
	})
}

// FindHighWage returns records whose prevailing wage is at least minWage.
func (h *Handler) FindHighWage(ctx context.Context, minWage float64, limit int) ([]models.JoinedRecord, error) {
	if minWage < 0 {
		return nil, apperrors.NewValidationError("minWage", "minimum wage must not be negative")
	}
	return h.selectJoined(ctx, "find_high_wage", limit, rowstore.Filter{
		Table: worksiteAlias, Column: models.ColPrevailingWage, Op: rowstore.OpGte, Value: minWage,
	})
}

// FindLowWage returns records whose prevailing wage is at most maxWage.
func (h *Handler) FindLowWage(ctx context.Context, maxWage float64, limit int) ([]models.JoinedRecord, error) {
	if maxWage <= 0 {
		return nil, apperrors.NewValidationError("maxWage", "maximum wage must be positive")
	}
	return h.selectJoined(ctx, "find_low_wage", limit, rowstore.Filter{
		Table: worksiteAlias, Column: models.ColPrevailingWage, Op: rowstore.OpLte, Value: maxWage,
	})
}

// withTimeout applies the configured store timeout; zero means none.
func (h *Handler) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if h.config.Timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, h.config.Timeout)
}

func (h *Handler) selectJoined(ctx context.Context, operation string, limit int, filters ...rowstore.Filter) ([]models.JoinedRecord, error) {
	if limit <= 0 {
		h.logger.Warn("rejected non-positive limit", map[string]interface{}{
			"operation": operation,
			"limit":     limit,
		})
		return nil, apperrors.NewValidationError("limit", fmt.Sprintf("limit must be a positive integer, got %d", limit))
	}

	q := JoinedQuery(limit)
	q.Filters = filters

	ctx, cancel := h.withTimeout(ctx)
	defer cancel()

	rows, err := h.store.Select(ctx, q)
	if err != nil {
		h.logger.Error("row store query failed", map[string]interface{}{
			"operation": operation,
			"limit":     limit,
			"error":     err,
		})
		if apperrors.IsCode(err, apperrors.ErrCodeValidation) || apperrors.IsCode(err, apperrors.ErrCodeRemote) {
			return nil, err
		}
		return nil, apperrors.NewRemoteError(operation, err)
	}

	records := toJoinedRecords(rows, limit)
	h.logger.Debug("row store query completed", map[string]interface{}{
		"operation": operation,
		"limit":     limit,
		"rowCount":  len(records),
	})
	return records, nil
}

// JoinedQuery is the fixed filings-worksites join:
//
//	SELECT f.case_number, f.employer_name, f.job_title, w.worksite_city, w.prevailing_wage
//	FROM lca_filings f JOIN lca_worksites w ON f.case_number = w.case_number
//	LIMIT {limit}
func JoinedQuery(limit int) rowstore.Query {
	return rowstore.Query{
		Table:   models.TableFilings,
		Alias:   filingAlias,
		Columns: []string{models.ColCaseNumber, models.ColEmployerName, models.ColJobTitle},
		Join: &rowstore.JoinSpec{
			Table:   models.TableWorksites,
			Alias:   worksiteAlias,
			On:      models.ColCaseNumber,
			Columns: []string{models.ColWorksiteCity, models.ColPrevailingWage},
		},
		Limit: limit,
	}
}

// toJoinedRecords keeps the first row seen for each case number.
func toJoinedRecords(rows []rowstore.Row, limit int) []models.JoinedRecord {
	records := make([]models.JoinedRecord, 0, len(rows))
	seen := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		caseNumber := row.String(models.ColCaseNumber)
		if _, dup := seen[caseNumber]; dup {
			continue
		}
		seen[caseNumber] = struct{}{}

		wage, _ := row.Float(models.ColPrevailingWage)
		records = append(records, models.JoinedRecord{
			CaseNumber:     caseNumber,
			EmployerName:   row.String(models.ColEmployerName),
			JobTitle:       row.String(models.ColJobTitle),
			WorksiteCity:   row.String(models.ColWorksiteCity),
			PrevailingWage: wage,
		})
		if len(records) == limit {
			break
		}
	}
	return records
}
