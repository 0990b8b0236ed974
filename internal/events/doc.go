// Package events carries task lifecycle events from the components that cause
// them (the housekeeper, the HTTP API) to the components that react to them
// (the history recorder, the kafka publisher) without either side knowing
// the other.
package events
