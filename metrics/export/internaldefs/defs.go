package internaldefs

import (
	"strconv"

	goNoPass "github.com/MrEthical07/goNoPass"
)

// CounterDef names one client counter for exporters.
type CounterDef struct {
	ID   goNoPass.MetricID
	Name string
	Help string
}

// HistogramDef names one client histogram for exporters.
type HistogramDef struct {
	ID   goNoPass.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: goNoPass.MetricAuthRequest, Name: "gonopass_auth_request_total", Help: "SendAuth calls."},
	{ID: goNoPass.MetricAuthSuccess, Name: "gonopass_auth_success_total", Help: "SendAuth calls that returned a challenge."},
	{ID: goNoPass.MetricAuthFailure, Name: "gonopass_auth_failure_total", Help: "SendAuth calls that returned an error."},
	{ID: goNoPass.MetricValidationRequest, Name: "gonopass_validation_request_total", Help: "SendValidation calls."},
	{ID: goNoPass.MetricValidationSuccess, Name: "gonopass_validation_success_total", Help: "SendValidation calls that returned a response."},
	{ID: goNoPass.MetricValidationFailure, Name: "gonopass_validation_failure_total", Help: "SendValidation calls that returned an error."},
	{ID: goNoPass.MetricInvalidRequest, Name: "gonopass_invalid_request_total", Help: "Calls rejected for blank arguments."},
	{ID: goNoPass.MetricSigningFailure, Name: "gonopass_signing_failure_total", Help: "Payloads that could not be signed."},
	{ID: goNoPass.MetricTransportFailure, Name: "gonopass_transport_failure_total", Help: "Round trips that produced no HTTP response."},
	{ID: goNoPass.MetricServerError, Name: "gonopass_server_error_total", Help: "Non-2xx responses."},
	{ID: goNoPass.MetricMalformedResponse, Name: "gonopass_malformed_response_total", Help: "2xx responses whose body was not a JSON object."},
	{ID: goNoPass.MetricEmptyResponse, Name: "gonopass_empty_response_total", Help: "2xx responses with an empty body."},
	{ID: goNoPass.MetricChallengeMismatch, Name: "gonopass_challenge_mismatch_total", Help: "Validations refused because the token was not issued for the email."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: goNoPass.MetricRoundTripLatency, Name: "gonopass_round_trip_latency_seconds", Help: "HTTP round-trip latency histogram."},
}

// Counter of audit events lost to backpressure.
const (
	AuditDroppedName = "gonopass_audit_dropped_total"
	AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."
)

// HistogramBounds are the finite upper bounds in seconds. The last
// snapshot bucket is +Inf.
var HistogramBounds = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}

// Operation and outcome labels for exporters that publish calls as one
// instrument with attributes.
const (
	OperationAuth       = "auth"
	OperationValidation = "validation"

	OutcomeRequest = "request"
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// CallDef places a per-call counter under an operation and outcome.
type CallDef struct {
	ID        goNoPass.MetricID
	Operation string
	Outcome   string
}

// CallDefs covers the request, success and failure counters of both calls.
var CallDefs = []CallDef{
	{ID: goNoPass.MetricAuthRequest, Operation: OperationAuth, Outcome: OutcomeRequest},
	{ID: goNoPass.MetricAuthSuccess, Operation: OperationAuth, Outcome: OutcomeSuccess},
	{ID: goNoPass.MetricAuthFailure, Operation: OperationAuth, Outcome: OutcomeFailure},
	{ID: goNoPass.MetricValidationRequest, Operation: OperationValidation, Outcome: OutcomeRequest},
	{ID: goNoPass.MetricValidationSuccess, Operation: OperationValidation, Outcome: OutcomeSuccess},
	{ID: goNoPass.MetricValidationFailure, Operation: OperationValidation, Outcome: OutcomeFailure},
}

// ErrorKindDef ties a failure counter to the kind string audit events use.
type ErrorKindDef struct {
	ID   goNoPass.MetricID
	Kind string
}

// ErrorKindDefs has one entry per error kind the client counts.
var ErrorKindDefs = []ErrorKindDef{
	{ID: goNoPass.MetricInvalidRequest, Kind: goNoPass.ErrorKindInvalidRequest},
	{ID: goNoPass.MetricSigningFailure, Kind: goNoPass.ErrorKindSigning},
	{ID: goNoPass.MetricTransportFailure, Kind: goNoPass.ErrorKindTransport},
	{ID: goNoPass.MetricServerError, Kind: goNoPass.ErrorKindServer},
	{ID: goNoPass.MetricMalformedResponse, Kind: goNoPass.ErrorKindMalformedResponse},
	{ID: goNoPass.MetricEmptyResponse, Kind: goNoPass.ErrorKindEmptyResponse},
	{ID: goNoPass.MetricChallengeMismatch, Kind: goNoPass.ErrorKindChallengeMismatch},
}

// BoundLabel formats bucket i as an "le" value: "0.01" ... "1", "+Inf".
func BoundLabel(i int) string {
	if i >= len(HistogramBounds) {
		return "+Inf"
	}
	return strconv.FormatFloat(HistogramBounds[i], 'g', -1, 64)
}

// NormalizeBuckets copies raw into a fixed-size array, zero-filling a
// missing or short histogram.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
