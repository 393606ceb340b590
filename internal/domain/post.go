package domain

// Post is a row of the ingested posts table as seen by the feed.
type Post struct {
	// URI is the AT-URI of the post (e.g. at://did:plc:abc/app.bsky.feed.post/3l3qo2vuowo2b).
	URI string

	// CreatedAt is the row's created_at value exactly as the datastore
	// returned it. It orders the feed and doubles as the pagination cursor.
	CreatedAt string
}
