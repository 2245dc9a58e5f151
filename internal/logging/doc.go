// Package logging provides structured logging helpers built on log/slog.
//
// It offers level parsing, handler setup and a small set of attribute
// constructors so that log fields keep consistent names across packages.
// Tokens are never logged verbatim; use SanitizeToken.
package logging
