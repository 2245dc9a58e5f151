// Package gmail provides a thin Gmail API client used by the provider proxy
// routes. Authorization is handled upstream by the integration manager.
package gmail
