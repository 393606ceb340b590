package domain

import "context"

// PostStore reads ingested posts for the feed skeleton.
type PostStore interface {
	// PostsBefore returns at most limit posts ordered by created_at
	// descending. A non-empty cursor restricts the result to posts whose
	// created_at is strictly less than the cursor.
	PostsBefore(ctx context.Context, cursor string, limit int) ([]Post, error)
}
