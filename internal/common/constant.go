package common

// AuthorizationHeaderName is the HTTP header used to carry the access token
// on outbound requests to the sync backend.
const AuthorizationHeaderName = "Authorization"

// Metadata keys for the local key/value store.
const (
	MetaDeviceID     = "device_id"
	MetaAccessToken  = "access_token"
	MetaRefreshToken = "refresh_token"
	MetaPullCursor   = "pull_cursor"
)
