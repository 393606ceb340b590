package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r-paxst/bskygfobsky/internal/domain"
)

const (
	testKey   = "service-role-key"
	testTable = "test_posts"
)

// fakePostgREST serves a single table the way PostgREST would for the
// select/order/limit/lt subset the store uses.
func fakePostgREST(t *testing.T, rows []postRow) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)

		if r.URL.Path != "/rest/v1/"+testTable {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"code": "42P01", "message": "relation does not exist"})
			return
		}
		if r.Header.Get("apikey") != testKey || r.Header.Get("Authorization") != "Bearer "+testKey {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"code": "401", "message": "invalid api key"})
			return
		}

		q := r.URL.Query()
		assert.Equal(t, "uri,created_at", strings.ReplaceAll(q.Get("select"), " ", ""))
		assert.True(t, strings.HasPrefix(q.Get("order"), "created_at.desc"), "order=%q", q.Get("order"))

		limit, err := strconv.Atoi(q.Get("limit"))
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"code": "PGRST103", "message": "invalid limit"})
			return
		}

		var bound string
		if f := q.Get("created_at"); f != "" {
			assert.True(t, strings.HasPrefix(f, "lt."), "filter=%q", f)
			bound = strings.TrimPrefix(f, "lt.")
		}

		sorted := append([]postRow(nil), rows...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].CreatedAt > sorted[j].CreatedAt })

		out := []postRow{}
		for _, row := range sorted {
			if bound != "" && row.CreatedAt >= bound {
				continue
			}
			if len(out) == limit {
				break
			}
			out = append(out, row)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(out)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestPostsBefore_Pagination(t *testing.T) {
	srv, _ := fakePostgREST(t, []postRow{
		{URI: "at://p2", CreatedAt: "2024-01-01"},
		{URI: "at://p1", CreatedAt: "2024-01-02"},
	})
	store := NewStore(srv.URL+"/", testKey, testTable)
	ctx := context.Background()

	page1, err := store.PostsBefore(ctx, "", 1)
	require.NoError(t, err)
	assert.Equal(t, []domain.Post{{URI: "at://p1", CreatedAt: "2024-01-02"}}, page1)

	page2, err := store.PostsBefore(ctx, "2024-01-02", 1)
	require.NoError(t, err)
	assert.Equal(t, []domain.Post{{URI: "at://p2", CreatedAt: "2024-01-01"}}, page2)

	page3, err := store.PostsBefore(ctx, "2024-01-01", 1)
	require.NoError(t, err)
	assert.Empty(t, page3)
}

func TestPostsBefore_EmptyTable(t *testing.T) {
	srv, _ := fakePostgREST(t, nil)
	store := NewStore(srv.URL, testKey, testTable)

	posts, err := store.PostsBefore(context.Background(), "", 30)
	require.NoError(t, err)
	assert.Empty(t, posts)
}

func TestPostsBefore_MissingCredentials(t *testing.T) {
	srv, hits := fakePostgREST(t, nil)

	for _, store := range []*Store{
		NewStore("", testKey, testTable),
		NewStore(srv.URL, "", testTable),
		NewStore("", "", testTable),
	} {
		_, err := store.PostsBefore(context.Background(), "", 30)
		assert.ErrorIs(t, err, domain.ErrCredentialsMissing)
	}
	assert.Zero(t, hits.Load(), "no request may be issued without credentials")
}

func TestPostsBefore_QueryError(t *testing.T) {
	srv, _ := fakePostgREST(t, nil)
	store := NewStore(srv.URL, testKey, "missing_table")

	_, err := store.PostsBefore(context.Background(), "", 30)
	require.Error(t, err)

	var qe *domain.QueryError
	require.ErrorAs(t, err, &qe)
	assert.True(t, strings.HasPrefix(err.Error(), "Database query failed: "), err.Error())
}

func TestPostsBefore_QueryErrorMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"code": "XX000", "message": "boom"})
	}))
	t.Cleanup(srv.Close)
	store := NewStore(srv.URL, testKey, testTable)

	_, err := store.PostsBefore(context.Background(), "", 30)
	require.Error(t, err)
	assert.Equal(t, "Database query failed: boom", err.Error())
}

func TestStripErrorCode(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "(42P01) relation does not exist", want: "relation does not exist"},
		{in: "(XX000) boom", want: "boom"},
		{in: "connection refused", want: "connection refused"},
		{in: "(unterminated", want: "(unterminated"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, stripErrorCode(errors.New(tt.in)).Error(), tt.in)
	}
}

func TestPostsBefore_TimestamptzCursor(t *testing.T) {
	const cursor = "2024-01-02T03:04:05.123+00:00"

	var gotFilter string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotFilter = r.URL.Query().Get("created_at")
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]postRow{
			{URI: "at://older", CreatedAt: "2024-01-01T00:00:00+00:00"},
		})
	}))
	t.Cleanup(srv.Close)
	store := NewStore(srv.URL, testKey, testTable)

	posts, err := store.PostsBefore(context.Background(), cursor, 10)
	require.NoError(t, err)
	assert.Equal(t, "lt."+cursor, gotFilter, "the + in the offset must survive URL encoding")
	assert.Equal(t, []domain.Post{{URI: "at://older", CreatedAt: "2024-01-01T00:00:00+00:00"}}, posts)
}

func TestPostsBefore_CancelledContext(t *testing.T) {
	srv, hits := fakePostgREST(t, nil)
	store := NewStore(srv.URL, testKey, testTable)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.PostsBefore(ctx, "", 30)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, hits.Load())
}
