// Package service contains the use cases behind the control API: launching
// tasks, asking them to stop and reading live and historical task state.
//
// Services coordinate the task registry, the lifecycle event emitter and the
// history store. They never depend on a concrete transport or database; the
// API layer maps their errors to HTTP status codes.
package service
