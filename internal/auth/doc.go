// Package auth implements account registration and opaque-token login
// sessions backed by the session store.
package auth
