package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/r-paxst/bskygfobsky/internal/config"
	"github.com/r-paxst/bskygfobsky/internal/domain"
)

const (
	describeFeedGeneratorPath = "/xrpc/app.bsky.feed.describeFeedGenerator"
	getFeedSkeletonPath       = "/xrpc/app.bsky.feed.getFeedSkeleton"
)

// Server is the HTTP server that serves feed generator XRPC endpoints.
type Server struct {
	cfg         *config.Config
	feedService *domain.FeedService
	logger      *slog.Logger
	router      *gin.Engine
	httpServer  *http.Server
}

// NewServer creates a new HTTP server with the given feed service.
func NewServer(cfg *config.Config, feedService *domain.FeedService, logger *slog.Logger) *Server {
	s := &Server{
		cfg:         cfg,
		feedService: feedService,
		logger:      logger,
	}

	r := gin.New()
	r.RedirectTrailingSlash = false
	r.Use(withLogging(logger), withRecovery(logger), withCORS())

	r.Any(describeFeedGeneratorPath, s.handleDescribeFeedGenerator)
	r.Any(getFeedSkeletonPath, s.handleGetFeedSkeleton)
	r.GET("/health", s.handleHealth)
	if cfg.Hostname != "" {
		r.GET("/.well-known/did.json", s.handleDIDDoc)
	}
	r.NoRoute(handleNotFound)
	s.router = r

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins listening for HTTP requests. It blocks until the server is
// shut down or an error occurs.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

type feedResponse struct {
	URI    string `json:"uri"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

type describeResponse struct {
	DID   string         `json:"did"`
	Feeds []feedResponse `json:"feeds"`
}

type skeletonPostResponse struct {
	Post string `json:"post"`
}

type skeletonResponse struct {
	Feed []skeletonPostResponse `json:"feed"`

	// Cursor is null once the feed is exhausted.
	Cursor *string `json:"cursor"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleDIDDoc(c *gin.Context) {
	doc := gin.H{
		"@context": []string{"https://www.w3.org/ns/did/v1"},
		"id":       s.cfg.ServiceDID(),
		"service": []gin.H{
			{
				"id":              "#bsky_fg",
				"type":            "BskyFeedGenerator",
				"serviceEndpoint": fmt.Sprintf("https://%s", s.cfg.Hostname),
			},
		},
	}
	c.JSON(http.StatusOK, doc)
}

func (s *Server) handleDescribeFeedGenerator(c *gin.Context) {
	desc := s.feedService.Describe()

	resp := describeResponse{
		DID:   desc.DID,
		Feeds: make([]feedResponse, len(desc.Feeds)),
	}
	for i, f := range desc.Feeds {
		resp.Feeds[i] = feedResponse{URI: f.URI, Name: f.Name, Avatar: f.Avatar}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleGetFeedSkeleton(c *gin.Context) {
	limit := domain.DefaultLimit
	if l := c.Query("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			s.logger.Warn("invalid limit parameter", "limit", l, "error", err)
			writeError(c, http.StatusBadRequest, "InvalidRequest", "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	cursor := c.Query("cursor")
	feedURI := c.Query("feed")

	s.logger.Info("getFeedSkeleton request", "feed", feedURI, "limit", limit, "cursor", cursor)

	skeleton, err := s.feedService.GetFeedSkeleton(c.Request.Context(), cursor, limit)
	if err != nil {
		s.logger.Error("failed to get feed skeleton",
			"limit", limit,
			"cursor", cursor,
			"error", err,
		)
		writeInternalError(c, err.Error())
		return
	}

	s.logger.Info("getFeedSkeleton success", "posts_returned", len(skeleton.Posts), "next_cursor", skeleton.Cursor)

	resp := skeletonResponse{
		Feed: make([]skeletonPostResponse, len(skeleton.Posts)),
	}
	for i, p := range skeleton.Posts {
		resp.Feed[i] = skeletonPostResponse{Post: p.Post}
	}
	if skeleton.Cursor != "" {
		resp.Cursor = &skeleton.Cursor
	}

	c.JSON(http.StatusOK, resp)
}

func handleNotFound(c *gin.Context) {
	c.Writer.Header().Del("Access-Control-Allow-Origin")
	c.String(http.StatusNotFound, "Not found")
}

func writeError(c *gin.Context, status int, errType, message string) {
	c.JSON(status, gin.H{
		"error":   errType,
		"message": message,
	})
}

func writeInternalError(c *gin.Context, message string) {
	c.String(http.StatusInternalServerError, "Internal Server Error: %s", message)
}
