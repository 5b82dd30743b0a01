package intra

import "fmt"

// NotFoundError is returned when the upstream resource does not exist
// (HTTP 404). It is terminal and never retried.
type NotFoundError struct {
	Endpoint string
	Reason   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("intra: %s not found: %s", e.Endpoint, e.Reason)
}

// TimeoutError is returned when the upstream does not respond within the
// per-call budget. The client never retries it; the caller decides.
type TimeoutError struct {
	Endpoint string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("intra: %s did not respond within the request timeout", e.Endpoint)
}

// UnknownError is returned when the attempt budget is exhausted or the
// upstream answered with an unexpected status.
type UnknownError struct {
	Endpoint string
	Status   int
	Reason   string
}

func (e *UnknownError) Error() string {
	return fmt.Sprintf("intra: %s failed: %s [%d]", e.Endpoint, e.Reason, e.Status)
}
