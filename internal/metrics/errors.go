package metrics

import "strconv"

// Error series. Endpoint labels come from middleware.EndpointLabel so the
// cardinality stays bounded.
const (
	ErrorsTotalName      = "errors_total"
	PanicsTotalName      = "panics_total"
	ErrorsByEndpointName = "errors_by_endpoint"
)

// RecordHTTPError counts an error response by code and status, and by
// endpoint when one is known.
func RecordHTTPError(endpoint, errorCode string, httpStatus int) {
	counter(ErrorsTotalName, map[string]string{
		"error_code":  errorCode,
		"http_status": strconv.Itoa(httpStatus),
	})
	if endpoint == "" {
		return
	}
	counter(ErrorsByEndpointName, map[string]string{
		"endpoint":   endpoint,
		"error_code": errorCode,
	})
}

// RecordPanic counts a recovered panic.
func RecordPanic() {
	counter(PanicsTotalName, nil)
}
