package internaldefs

import (
	tokenlife "github.com/tokenlife/tokenlife"
)

// CounterDef maps an engine counter to its exported name.
type CounterDef struct {
	ID   tokenlife.MetricID
	Name string
	Help string
}

// HistogramDef maps an engine histogram to its exported name.
type HistogramDef struct {
	ID   tokenlife.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: tokenlife.MetricIssueSuccess, Name: "tokenlife_issue_success_total", Help: "Successfully issued token sets."},
	{ID: tokenlife.MetricIssueFailure, Name: "tokenlife_issue_failure_total", Help: "Failed token set issuances."},
	{ID: tokenlife.MetricValidateSuccess, Name: "tokenlife_validate_success_total", Help: "Successful access token validations."},
	{ID: tokenlife.MetricValidateFailure, Name: "tokenlife_validate_failure_total", Help: "Failed access token validations."},
	{ID: tokenlife.MetricValidateRevoked, Name: "tokenlife_validate_revoked_total", Help: "Validations rejected for revoked tokens."},
	{ID: tokenlife.MetricRefreshSuccess, Name: "tokenlife_refresh_success_total", Help: "Successful refresh rotations."},
	{ID: tokenlife.MetricRefreshFailure, Name: "tokenlife_refresh_failure_total", Help: "Failed refresh attempts."},
	{ID: tokenlife.MetricRefreshConcurrentRejected, Name: "tokenlife_refresh_concurrent_rejected_total", Help: "Refresh attempts rejected by the concurrency gate."},
	{ID: tokenlife.MetricRefreshUsageExceeded, Name: "tokenlife_refresh_usage_exceeded_total", Help: "Refresh attempts over the chain usage budget."},
	{ID: tokenlife.MetricRefreshAbsoluteExpiry, Name: "tokenlife_refresh_absolute_expiry_total", Help: "Refresh attempts past the chain absolute expiry."},
	{ID: tokenlife.MetricRevocation, Name: "tokenlife_revocation_total", Help: "Single-token revocations."},
	{ID: tokenlife.MetricRevokeAllBatch, Name: "tokenlife_revoke_all_batch_total", Help: "Revoke-all batch operations."},
	{ID: tokenlife.MetricSessionRegistered, Name: "tokenlife_session_registered_total", Help: "Registered sessions."},
	{ID: tokenlife.MetricSessionEvicted, Name: "tokenlife_session_evicted_total", Help: "Sessions evicted past the concurrency cap."},
	{ID: tokenlife.MetricBindingMismatch, Name: "tokenlife_binding_mismatch_total", Help: "Detected security context binding mismatches."},
	{ID: tokenlife.MetricBindingRejected, Name: "tokenlife_binding_rejected_total", Help: "Validations rejected by strict binding."},
	{ID: tokenlife.MetricReplaySuspected, Name: "tokenlife_replay_suspected_total", Help: "Fast revalidations inside the reuse window."},
}

var HistogramDefs = []HistogramDef{
	{ID: tokenlife.MetricValidateLatency, Name: "tokenlife_validate_latency_seconds", Help: "Validate latency histogram."},
}

// HistogramBounds are the upper bucket bounds in seconds, Prometheus
// notation.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix mirrors HistogramBounds with characters safe in OTel
// instrument names.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates a raw snapshot slice to the fixed
// bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to cumulative counts.
func CumulativeBuckets(buckets [8]uint64) [8]uint64 {
	var out [8]uint64
	var sum uint64
	for i := 0; i < len(buckets); i++ {
		sum += buckets[i]
		out[i] = sum
	}
	return out
}
