// Package redis publishes the live snapshots of supervised tasks to Redis so
// that pollers in other processes can show progress without calling the API.
// Each task is a hash under task:<id>; the set task:index lists the ids.
package redis
