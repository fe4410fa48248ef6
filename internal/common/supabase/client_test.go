package supabase

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "lca-assistant/internal/common/errors"
	"lca-assistant/internal/common/rowstore"
)

// ==========================
// Test Helper Functions
// ==========================

func joinedQuery(limit int) rowstore.Query {
	return rowstore.Query{
		Table:   "lca_filings",
		Alias:   "f",
		Columns: []string{"case_number", "employer_name", "job_title"},
		Join: &rowstore.JoinSpec{
			Table:   "lca_worksites",
			Alias:   "w",
			On:      "case_number",
			Columns: []string{"worksite_city", "prevailing_wage"},
		},
		Limit: limit,
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(server.URL, "service-role-key", Options{})
	require.NoError(t, err)
	return client
}

// ==========================
// Constructor Tests
// ==========================

func TestNewClient_MissingCredentials(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		key     string
		missing []string
	}{
		{name: "missing url", url: "", key: "k", missing: []string{"SUPABASE_URL"}},
		{name: "missing key", url: "https://p.supabase.co", key: "  ", missing: []string{"SUPABASE_SERVICE_ROLE_KEY"}},
		{name: "missing both", missing: []string{"SUPABASE_URL", "SUPABASE_SERVICE_ROLE_KEY"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(tt.url, tt.key, Options{})
			assert.Nil(t, client)
			require.Error(t, err)
			assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeConfiguration))
			for _, name := range tt.missing {
				assert.Contains(t, err.Error(), name)
			}
		})
	}
}

func TestNewClient_MakesNoNetworkCall(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer server.Close()

	_, err := NewClient(server.URL+"/", "key", Options{})
	require.NoError(t, err)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

// ==========================
// Select Tests
// ==========================

func TestSelect_JoinedRowsAreFlattened(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/rest/v1/lca_filings", r.URL.Path)
		assert.Equal(t, "service-role-key", r.Header.Get("apikey"))
		assert.Equal(t, "Bearer service-role-key", r.Header.Get("Authorization"))
		assert.Equal(t, "case_number,employer_name,job_title,lca_worksites!inner(worksite_city,prevailing_wage)", r.URL.Query().Get("select"))
		assert.Equal(t, "2", r.URL.Query().Get("limit"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `[
			{"case_number":"I-1","employer_name":"Acme","job_title":"Engineer",
			 "lca_worksites":[{"worksite_city":"Austin","prevailing_wage":120000},{"worksite_city":"Dallas","prevailing_wage":90000}]},
			{"case_number":"I-2","employer_name":"Globex","job_title":"Analyst",
			 "lca_worksites":{"worksite_city":"Boston","prevailing_wage":98000.5}}
		]`)
	})

	rows, err := client.Select(context.Background(), joinedQuery(2))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "Austin", rows[0]["worksite_city"])
	assert.Equal(t, 120000.0, rows[0]["prevailing_wage"])
	assert.NotContains(t, rows[0], "lca_worksites")
	assert.Equal(t, "Boston", rows[1]["worksite_city"])
	for _, row := range rows {
		for _, col := range []string{"case_number", "employer_name", "job_title", "worksite_city", "prevailing_wage"} {
			assert.Contains(t, row, col)
		}
	}
}

func TestSelect_InvalidLimitNeverCallsServer(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	})

	for _, limit := range []int{0, -1} {
		_, err := client.Select(context.Background(), joinedQuery(limit))
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeValidation))
	}
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestSelect_HTTPErrorBecomesRemoteError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"code":"PGRST301","message":"JWT expired"}`)
	})

	_, err := client.Select(context.Background(), joinedQuery(5))

	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeRemote))
	assert.Contains(t, err.Error(), "JWT expired")
	stdErr, _ := apperrors.AsStandard(err)
	assert.Equal(t, "select", stdErr.Metadata["operation"])
}

func TestSelect_NetworkErrorBecomesRemoteError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	client, err := NewClient(server.URL, "key", Options{})
	require.NoError(t, err)
	server.Close()

	_, err = client.Select(context.Background(), joinedQuery(1))
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeRemote))
}

func TestEncodeQuery_Filters(t *testing.T) {
	q := joinedQuery(10)
	q.Filters = []rowstore.Filter{
		{Column: "employer_name", Op: rowstore.OpILike, Value: "google"},
		{Table: "w", Column: "prevailing_wage", Op: rowstore.OpGte, Value: 150000},
		{Table: "f", Column: "case_number", Op: rowstore.OpEq, Value: "I-200-1"},
	}

	values, err := url.ParseQuery(EncodeQuery(q))
	require.NoError(t, err)

	assert.Equal(t, "ilike.*google*", values.Get("employer_name"))
	assert.Equal(t, "gte.150000", values.Get("lca_worksites.prevailing_wage"))
	assert.Equal(t, "eq.I-200-1", values.Get("case_number"))
	assert.Equal(t, "10", values.Get("limit"))
}

// ==========================
// Raw Tests
// ==========================

func TestRaw_PostsStatementVerbatim(t *testing.T) {
	statement := "select employer_name, count(*) from lca_filings group by 1"
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/rest/v1/rpc/execute_query", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, statement, body["sql_query"])

		_, _ = io.WriteString(w, `[{"employer_name":"Acme","count":3}]`)
	})

	rows, err := client.Raw(context.Background(), statement)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Acme", rows[0].String("employer_name"))
}

func TestRaw_NullAndScalarResults(t *testing.T) {
	responses := []string{"null", `{"ok":true}`, `42`}
	var i int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&i, 1) - 1
		_, _ = io.WriteString(w, responses[n])
	})

	rows, err := client.Raw(context.Background(), "select 1")
	require.NoError(t, err)
	assert.Empty(t, rows)

	rows, err = client.Raw(context.Background(), "select 1")
	require.NoError(t, err)
	assert.Equal(t, true, rows[0]["ok"])

	rows, err = client.Raw(context.Background(), "select 1")
	require.NoError(t, err)
	assert.Equal(t, 42.0, rows[0]["value"])
}

func TestRaw_WriteRejectedByRole(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"code":"25006","message":"cannot execute DELETE in a read-only transaction"}`)
	})

	_, err := client.Raw(context.Background(), "delete from lca_filings")

	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeRemote))
	assert.Contains(t, err.Error(), "read-only transaction")
}

func TestPing(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/", r.URL.Path)
		if r.Header.Get("apikey") != "service-role-key" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"message":"Invalid API key"}`)
			return
		}
		_, _ = io.WriteString(w, `{"swagger":"2.0"}`)
	})
	require.NoError(t, client.Ping(context.Background()))

	bad := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"message":"Invalid API key"}`)
	})
	err := bad.Ping(context.Background())
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeRemote))
	assert.Contains(t, err.Error(), "Invalid API key")
}
