// Package sinks implements concrete progress consumers such as Prometheus,
// Postgres-backed storage, structured logging, and Pub/Sub export. Each sink
// satisfies the progress.Sink interface and is safe for repeated
// Consume/Close cycles.
package sinks
