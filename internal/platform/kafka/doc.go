// Package kafka forwards task lifecycle events to a Kafka topic so that other
// services can follow what the supervisor does with its tasks.
package kafka
