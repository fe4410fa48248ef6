// Package supabase implements rowstore.Store over the Supabase REST
// (PostgREST) API.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "lca-assistant/internal/common/errors"
	"lca-assistant/internal/common/metrics"
	"lca-assistant/internal/common/rowstore"
)

const (
	restPath         = "/rest/v1"
	executeQueryRPC  = "execute_query"
	defaultTimeout   = 10 * time.Second
	maxErrorBodySize = 4096
)

// Options tunes the client. The zero value is usable.
type Options struct {
	Schema     string
	Timeout    time.Duration
	HTTPClient *http.Client
}

type Client struct {
	baseURL    string
	apiKey     string
	schema     string
	httpClient *http.Client
}

// postgrestError is the error body PostgREST returns on non-2xx responses.
type postgrestError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

// NewClient validates the credentials and builds a client. No network call
// is made here.
func NewClient(baseURL, serviceRoleKey string, opts Options) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	serviceRoleKey = strings.TrimSpace(serviceRoleKey)

	var missing []string
	if baseURL == "" {
		missing = append(missing, "SUPABASE_URL")
	}
	if serviceRoleKey == "" {
		missing = append(missing, "SUPABASE_SERVICE_ROLE_KEY")
	}
	if len(missing) > 0 {
		return nil, apperrors.NewConfigurationError("missing " + strings.Join(missing, ", "))
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, apperrors.NewConfigurationError(fmt.Sprintf("invalid SUPABASE_URL: %v", err))
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	schema := opts.Schema
	if schema == "" {
		schema = "public"
	}

	return &Client{
		baseURL:    baseURL,
		apiKey:     serviceRoleKey,
		schema:     schema,
		httpClient: httpClient,
	}, nil
}

// Select issues GET /rest/v1/{table} with a PostgREST select expression.
func (c *Client) Select(ctx context.Context, q rowstore.Query) ([]rowstore.Row, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	endpoint := c.baseURL + restPath + "/" + url.PathEscape(q.Table) + "?" + EncodeQuery(q)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, apperrors.NewRemoteError("select", err)
	}
	req.Header.Set("Accept-Profile", c.schema)

	start := time.Now()
	body, err := c.do(req, "select")
	metrics.StoreQueryDuration.WithLabelValues("select").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	var raw []map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, apperrors.NewRemoteError("select", fmt.Errorf("decode response: %w", err))
	}

	rows := make([]rowstore.Row, 0, len(raw))
	for _, item := range raw {
		rows = append(rows, flatten(item, q.Join))
	}
	return rows, nil
}

// Raw calls the execute_query RPC with the statement as-is.
func (c *Client) Raw(ctx context.Context, statement string) ([]rowstore.Row, error) {
	payload, err := json.Marshal(map[string]string{"sql_query": statement})
	if err != nil {
		return nil, apperrors.NewRemoteError("raw", err)
	}

	endpoint := c.baseURL + restPath + "/rpc/" + executeQueryRPC
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, apperrors.NewRemoteError("raw", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Content-Profile", c.schema)

	start := time.Now()
	body, err := c.do(req, "raw")
	metrics.StoreQueryDuration.WithLabelValues("raw").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	return decodeRPCResult(body)
}

// Ping fetches the REST root, which checks the URL and the key together.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+restPath+"/", nil)
	if err != nil {
		return apperrors.NewRemoteError("ping", err)
	}
	_, err = c.do(req, "ping")
	return err
}

// Close drops idle pooled connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func (c *Client) do(req *http.Request, operation string) ([]byte, error) {
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.NewRemoteError(operation, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.NewRemoteError(operation, fmt.Errorf("read response body: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apperrors.NewRemoteError(operation, fmt.Errorf("status %d: %s", resp.StatusCode, errorMessage(body)))
	}
	return body, nil
}

// EncodeQuery renders q as PostgREST query parameters.
func EncodeQuery(q rowstore.Query) string {
	selectExpr := strings.Join(q.Columns, ",")
	if q.Join != nil {
		embed := q.Join.Table + "!inner(" + strings.Join(q.Join.Columns, ",") + ")"
		if selectExpr == "" {
			selectExpr = embed
		} else {
			selectExpr += "," + embed
		}
	}

	values := url.Values{}
	values.Set("select", selectExpr)
	for _, f := range q.Filters {
		column := f.Column
		if q.IsJoinFilter(f) {
			column = q.Join.Table + "." + f.Column
		}
		values.Add(column, string(f.Op)+"."+filterValue(f))
	}
	values.Set("limit", fmt.Sprintf("%d", q.Limit))
	return values.Encode()
}

func filterValue(f rowstore.Filter) string {
	v := fmt.Sprint(f.Value)
	if f.Op == rowstore.OpILike {
		return "*" + strings.Trim(v, "*%") + "*"
	}
	return v
}

// flatten merges the embedded join object into the parent row. PostgREST
// returns a one-to-many embed as an array; the first child wins.
func flatten(item map[string]interface{}, join *rowstore.JoinSpec) rowstore.Row {
	row := make(rowstore.Row, len(item))
	for k, v := range item {
		row[k] = v
	}
	if join == nil {
		return row
	}

	embedded, ok := item[join.Table]
	if !ok {
		return row
	}
	delete(row, join.Table)

	var child map[string]interface{}
	switch t := embedded.(type) {
	case map[string]interface{}:
		child = t
	case []interface{}:
		if len(t) > 0 {
			child, _ = t[0].(map[string]interface{})
		}
	}
	for k, v := range child {
		if _, exists := row[k]; !exists {
			row[k] = v
		}
	}
	return row
}

func decodeRPCResult(body []byte) ([]rowstore.Row, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []rowstore.Row{}, nil
	}

	var value interface{}
	if err := json.Unmarshal(trimmed, &value); err != nil {
		return nil, apperrors.NewRemoteError("raw", fmt.Errorf("decode response: %w", err))
	}

	switch t := value.(type) {
	case []interface{}:
		rows := make([]rowstore.Row, 0, len(t))
		for _, item := range t {
			if m, ok := item.(map[string]interface{}); ok {
				rows = append(rows, rowstore.Row(m))
			} else {
				rows = append(rows, rowstore.Row{"value": item})
			}
		}
		return rows, nil
	case map[string]interface{}:
		return []rowstore.Row{rowstore.Row(t)}, nil
	default:
		return []rowstore.Row{{"value": t}}, nil
	}
}

func errorMessage(body []byte) string {
	var pgErr postgrestError
	if err := json.Unmarshal(body, &pgErr); err == nil && pgErr.Message != "" {
		if pgErr.Code != "" {
			return pgErr.Code + " " + pgErr.Message
		}
		return pgErr.Message
	}
	if len(body) > maxErrorBodySize {
		body = body[:maxErrorBodySize]
	}
	return strings.TrimSpace(string(body))
}
