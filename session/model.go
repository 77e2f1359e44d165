package session

// Session is the server-side record of an authenticated client. The Token is
// the opaque handle held by the transport layer; everything else stays on the
// server.
type Session struct {
	Token    string
	Username string

	CreatedAt int64
	ExpiresAt int64
}
