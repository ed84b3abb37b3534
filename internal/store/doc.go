// Package store defines persistence interfaces and shared errors for the
// durable store. Implementations live in internal/platform/postgres.
package store
