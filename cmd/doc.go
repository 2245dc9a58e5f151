// Package cmd implements the command-line interface for keeply-server.
//
// The CLI is built with cobra and provides the following commands:
//   - serve: run the HTTP API server (default)
//   - version: print version information
package cmd
