// Package otel bridges tokenlife metrics snapshots onto OpenTelemetry
// observable instruments. The exporter polls [tokenlife.Engine] snapshots
// from a registered callback; it never pushes.
package otel
