// Package integration owns the OAuth token lifecycle for third-party
// providers (Google for Gmail and Calendar, Microsoft for Outlook).
//
// The Manager loads stored credentials, refreshes access tokens through the
// provider token endpoint when they are within the expiry safety margin,
// persists the refreshed tuple, and hands out API clients bound to a valid
// token. Failures are typed (see errors.go) so the HTTP layer can map a
// user-fixable condition to 4xx instead of 500.
package integration
