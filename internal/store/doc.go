// Package store defines the persistence interfaces for users, tasks and
// comments, the errors they return, and a transaction helper shared by the
// services. Implementations live in internal/platform/postgres.
package store
