// Package api exposes the task supervisor over HTTP. Read endpoints list live
// tasks and the history of dropped ones; authenticated endpoints launch the
// demonstration task and ask tasks to stop. Handlers translate between JSON
// and the service layer and map service errors to status codes.
package api
