package session

// Session binds one refresh token to a user. The token itself is never
// stored; the store is keyed by its hash.
type Session struct {
	UserID    string
	IP        string
	UserAgent string

	// Unix seconds.
	CreatedAt int64
	ExpiresAt int64
}
