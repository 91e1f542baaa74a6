package constants

// Context keys
const (
	ContextKeyUserID      = "user_id"
	ContextKeyUser        = "user"
	ContextKeyTokenClaims = "token_claims"
	ContextKeyTask        = "task"
	ContextKeyRequestID   = "request_id"
)

// AccessTokenCookieName is the HTTP-only cookie carrying the session token.
const AccessTokenCookieName = "access_token"

const RequestIDHeader = "X-Request-Id"

// Password limits (bcrypt only looks at the first 72 bytes)
const (
	MinPasswordLength = 1
	MaxPasswordLength = 72
)

// Pagination
const (
	MinPageSize     = 1
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// TotalCountHeader carries the unpaginated size of a task list.
const TotalCountHeader = "X-Total-Count"
