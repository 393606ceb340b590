package main

import (
	"cmp"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"

	"github.com/r-paxst/bskygfobsky/internal/bluesky"
	"github.com/r-paxst/bskygfobsky/internal/config"
)

type options struct {
	Handle       string `long:"handle" env:"BLUESKY_HANDLE" description:"BlueSky handle (e.g. user.bsky.social)" required:"true"`
	Password     string `long:"password" env:"BLUESKY_APP_PASSWORD" description:"BlueSky app password" required:"true"`
	PDS          string `long:"pds" env:"BLUESKY_PDS" default:"https://bsky.social" description:"PDS service URL"`
	ServiceDID   string `long:"service-did" env:"FEEDGEN_SERVICE_DID" description:"Feed generator service DID (defaults to did:web:$FEEDGEN_HOSTNAME)"`
	Hostname     string `long:"hostname" env:"FEEDGEN_HOSTNAME" description:"Public hostname of the feed generator"`
	RKey         string `long:"rkey" env:"FEED_ID" description:"Record key / short name for the feed"`
	DisplayName  string `long:"name" env:"FEED_NAME" description:"Feed display name (max 24 graphemes)"`
	Description  string `long:"description" description:"Feed description (max 300 graphemes)"`
	Avatar       string `long:"avatar" env:"FEED_AVATAR" description:"Avatar image URL"`
	UploadAvatar bool   `long:"upload-avatar" description:"Fetch the avatar URL and attach it to the record"`
	Unpublish    bool   `long:"unpublish" description:"Delete the feed generator record instead of publishing"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	var opts options
	if _, err := flags.NewParser(&opts, flags.Default).Parse(); err != nil {
		if config.IsHelp(err) {
			return nil
		}
		return err
	}

	opts.RKey = cmp.Or(opts.RKey, config.DefaultFeedID)
	opts.DisplayName = cmp.Or(opts.DisplayName, config.DefaultFeedName)
	if opts.ServiceDID == "" && opts.Hostname != "" {
		opts.ServiceDID = config.WebDID(opts.Hostname)
	}

	ctx := context.Background()
	client := bluesky.NewClient(opts.PDS)

	fmt.Printf("Logging in as %s...\n", opts.Handle)
	if err := client.Login(ctx, opts.Handle, opts.Password); err != nil {
		return err
	}
	fmt.Printf("Authenticated as %s\n", client.DID())

	if did := os.Getenv("FEED_DID"); did != "" && did != client.DID() {
		fmt.Printf("Warning: FEED_DID is %s but the record is written to %s\n", did, client.DID())
	}

	if opts.Unpublish {
		fmt.Printf("Unpublishing feed %q...\n", opts.RKey)
		if err := client.UnpublishFeedGenerator(ctx, opts.RKey); err != nil {
			return err
		}
		fmt.Printf("Feed unpublished: %s\n", client.FeedURI(opts.RKey))
		return nil
	}

	if opts.ServiceDID == "" {
		return fmt.Errorf("--service-did or --hostname is required for publishing (or set FEEDGEN_SERVICE_DID / FEEDGEN_HOSTNAME)")
	}

	record := bluesky.FeedGeneratorRecord{
		DID:         opts.ServiceDID,
		DisplayName: opts.DisplayName,
		Description: opts.Description,
		CreatedAt:   time.Now().UTC().Format(time.RFC3339),
	}

	if opts.UploadAvatar {
		avatarURL := cmp.Or(opts.Avatar, config.DefaultFeedAvatar)
		fmt.Printf("Uploading avatar from %s...\n", avatarURL)
		data, mimeType, err := client.FetchImage(ctx, avatarURL)
		if err != nil {
			return fmt.Errorf("fetch avatar: %w", err)
		}
		blob, err := client.UploadBlob(ctx, data, mimeType)
		if err != nil {
			return err
		}
		record.Avatar = blob
	}

	fmt.Printf("Publishing feed %q...\n", opts.RKey)
	if err := client.PublishFeedGenerator(ctx, opts.RKey, record); err != nil {
		return err
	}

	fmt.Printf("Feed published: %s\n", client.FeedURI(opts.RKey))
	return nil
}
