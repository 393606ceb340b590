package supabase

import (
	"context"
	"errors"
	"strings"

	"github.com/supabase-community/postgrest-go"

	"github.com/r-paxst/bskygfobsky/internal/domain"
)

const (
	restPath = "/rest/v1"
	schema   = "public"
)

// Store implements domain.PostStore on top of a Supabase project's PostgREST
// API. The zero-credential Store is valid and fails every query with
// domain.ErrCredentialsMissing.
type Store struct {
	client *postgrest.Client
	table  string
}

// NewStore returns a Store for the given project URL and service-role key.
// Missing credentials are not an error here; they surface per query.
func NewStore(projectURL, serviceKey, table string) *Store {
	s := &Store{table: table}
	if projectURL == "" || serviceKey == "" {
		return s
	}

	s.client = postgrest.NewClient(strings.TrimRight(projectURL, "/")+restPath, schema, map[string]string{
		"apikey":        serviceKey,
		"Authorization": "Bearer " + serviceKey,
	})
	return s
}

type postRow struct {
	URI       string `json:"uri"`
	CreatedAt string `json:"created_at"`
}

// PostsBefore runs
//
//	select uri, created_at from <table> [where created_at < cursor]
//	order by created_at desc limit <limit>
//
// through PostgREST. postgrest-go does not take a context, so ctx is only
// checked before the request is sent.
func (s *Store) PostsBefore(ctx context.Context, cursor string, limit int) ([]domain.Post, error) {
	if s.client == nil {
		return nil, domain.ErrCredentialsMissing
	}
	if s.client.ClientError != nil {
		return nil, &domain.QueryError{Err: s.client.ClientError}
	}
	if err := ctx.Err(); err != nil {
		return nil, &domain.QueryError{Err: err}
	}

	query := s.client.From(s.table).
		Select("uri, created_at", "", false).
		Order("created_at", &postgrest.OrderOpts{Ascending: false}).
		Limit(limit, "")
	if cursor != "" {
		query = query.Lt("created_at", cursor)
	}

	var rows []postRow
	if _, err := query.ExecuteTo(&rows); err != nil {
		return nil, &domain.QueryError{Err: stripErrorCode(err)}
	}

	posts := make([]domain.Post, len(rows))
	for i, r := range rows {
		posts[i] = domain.Post{URI: r.URI, CreatedAt: r.CreatedAt}
	}
	return posts, nil
}

// stripErrorCode drops the "(code) " prefix postgrest-go puts in front of
// PostgREST error messages, leaving the message supabase-js would report.
func stripErrorCode(err error) error {
	msg := err.Error()
	if !strings.HasPrefix(msg, "(") {
		return err
	}
	end := strings.Index(msg, ") ")
	if end < 0 {
		return err
	}
	return errors.New(msg[end+2:])
}
