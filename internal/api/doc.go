// Package api exposes the task queue over HTTP: routing, bearer-token
// authentication, request validation and response formatting. Handlers
// translate HTTP requests into pool and event operations.
package api
