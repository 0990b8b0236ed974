// Package housekeeping periodically sweeps the task registry: it disposes of
// terminated tasks according to their post-termination behaviour and the
// retention limits, replaces stopped tasks by their successors and publishes
// the progress of everything still visible.
package housekeeping
