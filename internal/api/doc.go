// Package api implements the HTTP handlers of the tracker: accounts and
// tokens, projects, issues and attachments. Handlers decode and validate
// requests, call the services and map service errors to status codes with
// MapErrorToStatusCode and GetSafeErrorMessage.
package api
