// Package internaldefs holds the shared metric naming tables consumed by the
// exporter packages. It exists so the OTel and Prometheus exporters render
// identical names without importing each other.
package internaldefs
