// Package service contains the application use cases: user registration and
// login, task management, and comment persistence. Services coordinate the
// domain types with the store interfaces and never depend on a concrete
// database implementation.
//
// Comment writes run behind a circuit breaker so a failing database is
// reported to live comment sessions quickly instead of stalling each of them.
package service
