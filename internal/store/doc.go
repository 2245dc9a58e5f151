// Package store provides PostgreSQL persistence for users, sessions and
// per-user provider integrations.
//
// Repositories accept the Querier interface so tests can substitute pgxmock
// for a live pool. Integration writes are whole-row merge upserts: nil patch
// fields keep the stored value, which is what lets a token refresh preserve
// a refresh token the provider chose not to rotate.
package store
