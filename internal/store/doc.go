// Package store defines the history store: the durable record of tasks that
// have left the registry. Implementations live under internal/platform.
package store
