package common

// Cookie names shared by the HTTP API and the CLI client.
const (
	AccessTokenCookieName  = "accessToken"
	RefreshTokenCookieName = "refreshToken"
)
