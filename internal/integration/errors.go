package integration

import "errors"

// Failure taxonomy for token acquisition and the authorization flow. The
// HTTP layer maps these to status codes; none of them is a server defect, so
// none of them may surface as a generic 500 except ErrCredentialsMissing,
// which is a deployment problem only an operator can fix.
var (
	// ErrNotConfigured: the user has no stored integration, or no token for
	// the requested provider.
	ErrNotConfigured = errors.New("integration not configured")

	// ErrProviderAuth: the provider rejected our stored credentials
	// (expired or revoked refresh token, bad client credentials). The user
	// must re-authorize the integration.
	ErrProviderAuth = errors.New("provider rejected stored credentials")

	// ErrExchangeFailed: the authorization-code-for-token exchange was
	// rejected. Not retried; the user must restart the flow.
	ErrExchangeFailed = errors.New("authorization code exchange failed")

	// ErrProviderUnavailable: network failure or timeout talking to the
	// provider. Safe for the caller to retry.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrTokenExpired: the stored access token is past its expiry. Reported
	// by introspection only; the caller decides whether to request a refresh.
	ErrTokenExpired = errors.New("access token expired")

	// ErrCredentialsMissing: the deployment has no client id/secret for the
	// requested provider family.
	ErrCredentialsMissing = errors.New("provider client credentials not configured")

	// ErrBadState: the OAuth state parameter failed verification.
	ErrBadState = errors.New("invalid oauth state")
)
