package common

// Cookie and header names consumed by the session layer.
const (
	AccessTokenCookieName  = "access_token"
	RefreshTokenCookieName = "refresh_token"
	CSRFTokenCookieName    = "csrf_token"
	CSRFTokenHeaderName    = "X-CSRF-Token"
)
