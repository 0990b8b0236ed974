// Package task supervises long-running background work. A Task runs a caller-supplied
// Body on its own goroutine, exposes coarse progress and a human-readable detail to UI
// pollers, contains any failure of the body, and declares what the housekeeper should do
// with it once it has stopped running.
//
// The state of a task is never stored. It is derived on every read from the few facts
// that are stored: whether the task was started, whether a stop was requested, and the
// termination record written exactly once when the body returns.
package task
