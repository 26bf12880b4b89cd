// Package domain contains the core business entities of the task tracker
// (users, tasks and their comments) together with their validation rules.
// It is independent of storage, HTTP and WebSocket concerns.
package domain
