// Package calendar provides a thin Google Calendar API client used by the
// provider proxy routes. Authorization is handled upstream by the
// integration manager.
package calendar
