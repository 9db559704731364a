// Package prometheus renders tokenlife metrics in Prometheus text
// exposition format. [NewExporter] accepts a [tokenlife.Engine] and exposes
// an http.Handler; callers mount it, nothing registers globally.
package prometheus
