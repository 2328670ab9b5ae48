// Package telemetry carries the structured logger and the Prometheus metrics
// used by the write pipeline, the collection façade and the CLI.
//
// Both are safe to use as zero-cost no-ops: Nop returns a logger that
// discards everything, and a Metrics built with Enabled=false records nothing.
package telemetry
