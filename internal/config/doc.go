// Package config handles configuration loading, parsing, and validation
// from a YAML file and TASKKEEPER_* environment variables. It provides
// type-safe access to the settings of the server, the housekeeper and the
// optional history, progress cache and event publisher backends.
package config
