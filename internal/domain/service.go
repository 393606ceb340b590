package domain

import (
	"context"
	"fmt"
	"log/slog"
)

const (
	// DefaultLimit is the page size used when the caller does not ask for one.
	DefaultLimit = 30

	// MaxLimit caps a single skeleton page. Larger requests are clamped.
	MaxLimit = 100
)

// FeedConfig describes the single feed served by this generator.
type FeedConfig struct {
	// DID is the DID of the account that published the feed generator record.
	DID string

	// RKey is the record key of the feed generator record.
	RKey string

	Name   string
	Avatar string
}

// URI returns the AT-URI of the feed generator record.
func (c FeedConfig) URI() string {
	return newFeedURI(c.DID, c.RKey)
}

func newFeedURI(publisherDID, feedName string) string {
	return fmt.Sprintf("at://%s/app.bsky.feed.generator/%s", publisherDID, feedName)
}

// FeedService is the core domain service. It describes the feed and serves
// reverse-chronological skeleton pages from the post store.
type FeedService struct {
	feed   FeedConfig
	store  PostStore
	logger *slog.Logger
}

// NewFeedService creates a FeedService for the given feed.
func NewFeedService(feed FeedConfig, store PostStore, logger *slog.Logger) *FeedService {
	return &FeedService{
		feed:   feed,
		store:  store,
		logger: logger,
	}
}

// FeedURI returns the AT-URI of the served feed.
func (s *FeedService) FeedURI() string {
	return s.feed.URI()
}

// Describe returns the describeFeedGenerator payload. It is built fresh on
// every call and depends only on the feed configuration.
func (s *FeedService) Describe() GeneratorDescription {
	return GeneratorDescription{
		DID: s.feed.DID,
		Feeds: []FeedDescription{
			{
				URI:    s.feed.URI(),
				Name:   s.feed.Name,
				Avatar: s.feed.Avatar,
			},
		},
	}
}

// GetFeedSkeleton returns a page of the feed skeleton, newest first. An empty
// cursor starts from the most recent post. Store errors are returned
// unwrapped so callers can report ErrCredentialsMissing and *QueryError
// messages verbatim.
func (s *FeedService) GetFeedSkeleton(ctx context.Context, cursor string, limit int) (*FeedSkeleton, error) {
	limit = clampLimit(limit)

	s.logger.Debug("GetFeedSkeleton called", "limit", limit, "cursor", cursor)

	posts, err := s.store.PostsBefore(ctx, cursor, limit)
	if err != nil {
		s.logger.Error("post store query failed", "limit", limit, "cursor", cursor, "error", err)
		return nil, err
	}

	skeleton := &FeedSkeleton{
		Posts: make([]SkeletonPost, len(posts)),
	}
	for i, p := range posts {
		skeleton.Posts[i] = SkeletonPost{Post: p.URI}
	}
	if len(posts) > 0 {
		skeleton.Cursor = posts[len(posts)-1].CreatedAt
	}

	s.logger.Debug("post store query succeeded", "posts_count", len(posts), "next_cursor", skeleton.Cursor)
	return skeleton, nil
}

func clampLimit(limit int) int {
	switch {
	case limit < 1:
		return 1
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}
