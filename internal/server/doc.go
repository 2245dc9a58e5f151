// Package server exposes keeply's HTTP API: local auth endpoints, the
// integrations surface (status, authorization flow, token introspection) and
// thin authenticated proxies to the provider APIs. It also carries the session
// gate middleware and the dedicated metrics listener.
package server
