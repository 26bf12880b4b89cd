// Package api handles incoming HTTP requests, routing, request validation,
// and response formatting for the task and comment endpoints. It acts as an
// adapter between external clients and the internal application services,
// translating HTTP concerns to business operations. The live comment stream
// is served by package realtime.
package api
