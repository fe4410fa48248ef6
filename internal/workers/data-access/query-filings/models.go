// internal/workers/data-access/query-filings/models.go
package queryfilings

import "lca-assistant/internal/models"

// JoinedSampleResult is delivered on the channel returned by GetJoinedSampleAsync.
type JoinedSampleResult struct {
	Records []models.JoinedRecord
	Err     error
}
