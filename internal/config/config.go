package config

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/jessevdk/go-flags"
)

// Fallbacks for the feed identity when the environment leaves them unset.
const (
	DefaultFeedDID    = "did:plc:5x7g63oe642b5apm7nbi6e26"
	DefaultFeedID     = "gayfriendsof"
	DefaultFeedName   = "Gay Friends Of"
	DefaultFeedAvatar = "https://example.com/path/to/feed-avatar.png"
)

// Supported values for Config.Datastore.
const (
	DatastoreSupabase = "supabase"
	DatastorePostgres = "postgres"
	DatastoreSQLite   = "sqlite"
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Config holds all configuration for the application.
type Config struct {
	// FeedDID is the DID that owns the feed generator record.
	FeedDID string `long:"feed-did" env:"FEED_DID" description:"DID of the feed publisher"`

	// FeedID is the record key of the feed generator record.
	FeedID string `long:"feed-id" env:"FEED_ID" description:"Feed record key"`

	// FeedName is the display name advertised by describeFeedGenerator.
	FeedName string `long:"feed-name" env:"FEED_NAME" description:"Feed display name"`

	// FeedAvatar is the avatar URL advertised by describeFeedGenerator.
	FeedAvatar string `long:"feed-avatar" env:"FEED_AVATAR" description:"Feed avatar URL"`

	// SupabaseURL is the project URL, e.g. https://xyz.supabase.co.
	SupabaseURL string `long:"supabase-url" env:"SUPABASE_URL" description:"Supabase project URL"`

	// SupabaseKey is the service-role key used for PostgREST requests.
	SupabaseKey string `long:"supabase-key" env:"SUPABASE_SERVICE_ROLE_KEY" description:"Supabase service role key"`

	// Datastore selects the backend the skeleton is read from.
	Datastore string `long:"datastore" env:"DATASTORE" default:"supabase" choice:"supabase" choice:"postgres" choice:"sqlite" description:"Posts datastore backend"`

	// DatabaseURL is the Postgres connection string for the postgres datastore.
	DatabaseURL string `long:"database-url" env:"DATABASE_URL" description:"Postgres connection string"`

	// SQLitePath is the database file for the sqlite datastore.
	SQLitePath string `long:"sqlite-path" env:"SQLITE_PATH" default:"feed.db" description:"SQLite database file"`

	// PostsTable is the table holding ingested posts.
	PostsTable string `long:"posts-table" env:"FEED_POSTS_TABLE" default:"gayfriendsof_bluesky_posts" description:"Table holding ingested posts"`

	// Port is the HTTP server port.
	Port int `long:"port" env:"PORT" default:"3000" description:"HTTP server port"`

	// Hostname is the public hostname used for the did:web document. Empty
	// disables /.well-known/did.json.
	Hostname string `long:"hostname" env:"FEEDGEN_HOSTNAME" description:"Public hostname of this service"`

	LogLevel string `long:"log-level" env:"LOG_LEVEL" default:"info" description:"Log level (debug, info, warn, error)"`
}

// ServiceDID returns the did:web for this feed generator based on the hostname.
func (c *Config) ServiceDID() string {
	return WebDID(c.Hostname)
}

// WebDID returns the did:web identifier for hostname.
func WebDID(hostname string) string {
	return "did:web:" + hostname
}

// IsHelp reports whether err is go-flags' response to --help. The error
// message is the usage text.
func IsHelp(err error) bool {
	var flagsErr *flags.Error
	return errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp
}

// SupabaseConfigured reports whether both Supabase credentials are present.
func (c *Config) SupabaseConfigured() bool {
	return c.SupabaseURL != "" && c.SupabaseKey != ""
}

// Level returns the parsed slog level. Load has already validated it.
func (c *Config) Level() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Load reads configuration from command-line args and environment variables
// with sensible defaults. Flags take precedence over the environment.
func Load(args []string) (*Config, error) {
	var cfg Config

	parser := flags.NewParser(&cfg, flags.HelpFlag|flags.PassDoubleDash)
	if _, err := parser.ParseArgs(args); err != nil {
		if IsHelp(err) {
			return nil, err
		}
		return nil, fmt.Errorf("parse configuration: %w", err)
	}

	cfg.FeedDID = cmp.Or(cfg.FeedDID, DefaultFeedDID)
	cfg.FeedID = cmp.Or(cfg.FeedID, DefaultFeedID)
	cfg.FeedName = cmp.Or(cfg.FeedName, DefaultFeedName)
	cfg.FeedAvatar = cmp.Or(cfg.FeedAvatar, DefaultFeedAvatar)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT: %d", c.Port)
	}
	if !tableNamePattern.MatchString(c.PostsTable) {
		return fmt.Errorf("invalid FEED_POSTS_TABLE %q: must be a plain identifier", c.PostsTable)
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	switch c.Datastore {
	case DatastoreSupabase, DatastoreSQLite:
	case DatastorePostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres datastore")
		}
	default:
		return fmt.Errorf("unknown DATASTORE %q", c.Datastore)
	}
	return nil
}
