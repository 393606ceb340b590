package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/r-paxst/bskygfobsky/internal/domain"
)

type dialect int

const (
	dialectPostgres dialect = iota
	dialectSQLite
)

// Repository implements domain.PostStore over database/sql. It serves both a
// direct Postgres connection and a local SQLite file.
type Repository struct {
	db      *sql.DB
	table   string
	dialect dialect
}

// OpenPostgres connects to PostgreSQL at the given URL, verifies the
// connection, and returns a new Repository reading from table. The caller
// should call Close when the repository is no longer needed.
func OpenPostgres(databaseURL, table string) (*Repository, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Repository{db: db, table: table, dialect: dialectPostgres}, nil
}

// OpenSQLite opens the SQLite database at path and creates the posts table
// if it does not exist yet.
func OpenSQLite(path, table string) (*Repository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared across queries.
	db.SetMaxOpenConns(1)

	r := &Repository{db: db, table: table, dialect: dialectSQLite}
	if err := r.ensureSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

// Close closes the underlying database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) ensureSchema(ctx context.Context) error {
	table := quoteIdent(r.table)
	queries := []string{
		`CREATE TABLE IF NOT EXISTS ` + table + ` (
			uri TEXT PRIMARY KEY,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS ` + quoteIdent(r.table+"_created_at_idx") + ` ON ` + table + ` (created_at DESC)`,
	}
	for _, q := range queries {
		if _, err := r.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// PostsBefore retrieves posts ordered by created_at descending. A non-empty
// cursor is compared with strict less-than against created_at, so rows that
// share the cursor's exact timestamp are not returned.
func (r *Repository) PostsBefore(ctx context.Context, cursor string, limit int) ([]domain.Post, error) {
	var (
		rows *sql.Rows
		err  error
	)

	table := quoteIdent(r.table)
	if cursor != "" {
		rows, err = r.db.QueryContext(ctx, `
			SELECT uri, created_at
			FROM `+table+`
			WHERE created_at < `+r.placeholder(1)+`
			ORDER BY created_at DESC
			LIMIT `+r.placeholder(2),
			cursor, limit,
		)
	} else {
		rows, err = r.db.QueryContext(ctx, `
			SELECT uri, created_at
			FROM `+table+`
			ORDER BY created_at DESC
			LIMIT `+r.placeholder(1),
			limit,
		)
	}
	if err != nil {
		return nil, &domain.QueryError{Err: err}
	}
	defer rows.Close()

	var posts []domain.Post
	for rows.Next() {
		var p domain.Post
		if err := rows.Scan(&p.URI, &p.CreatedAt); err != nil {
			return nil, &domain.QueryError{Err: fmt.Errorf("scan post: %w", err)}
		}
		posts = append(posts, p)
	}

	if err := rows.Err(); err != nil {
		return nil, &domain.QueryError{Err: fmt.Errorf("iterate posts: %w", err)}
	}

	return posts, nil
}

func (r *Repository) placeholder(n int) string {
	if r.dialect == dialectSQLite {
		return "?"
	}
	return fmt.Sprintf("$%d", n)
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
