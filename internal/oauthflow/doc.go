// Package oauthflow implements the redirect-based OAuth 2.0 authorization
// sequence against Google and the Microsoft identity platform: building
// authorization URLs with a signed state parameter, and exchanging the
// returned code for tokens that are persisted to the credential store.
package oauthflow
