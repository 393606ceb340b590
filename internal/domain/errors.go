package domain

import "errors"

// ErrCredentialsMissing is returned when the datastore credentials were not
// configured. No query is issued in that case.
var ErrCredentialsMissing = errors.New("Supabase credentials not configured")

// QueryError reports a failed datastore query.
type QueryError struct {
	Err error
}

func (e *QueryError) Error() string {
	return "Database query failed: " + e.Err.Error()
}

func (e *QueryError) Unwrap() error {
	return e.Err
}
