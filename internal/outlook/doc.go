// Package outlook provides a thin Microsoft Graph client for the Outlook
// mail and calendar proxy routes. Authorization is handled upstream by the
// integration manager.
package outlook
