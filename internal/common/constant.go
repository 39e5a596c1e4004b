package common

// Cookie names carrying the token pair. The access cookie value includes the
// "Bearer " scheme prefix.
const (
	AccessTokenCookieName  = "accessToken"
	RefreshTokenCookieName = "refreshToken"
)

// BearerPrefix is the authorization scheme prefix of an access token on the wire.
const BearerPrefix = "Bearer "
