package catalog

import "fmt"

// NetworkError reports a transport failure, a timeout or a non-2xx response
// from an upstream endpoint.
type NetworkError struct {
	Op         string
	URL        string
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: unexpected status %d", e.Op, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// MalformedResponseError reports an upstream response that could not be
// decoded or lacks a required field.
type MalformedResponseError struct {
	URL   string
	Field string
	Err   error
}

func (e *MalformedResponseError) Error() string {
	switch {
	case e.Field != "" && e.Err != nil:
		return fmt.Sprintf("malformed response from %s: field %s: %v", e.URL, e.Field, e.Err)
	case e.Field != "":
		return fmt.Sprintf("malformed response from %s: missing or invalid field %s", e.URL, e.Field)
	default:
		return fmt.Sprintf("malformed response from %s: %v", e.URL, e.Err)
	}
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// Acquisition stages.
const (
	StageSummary = "summary"
	StageDetail  = "detail"
)

// AcquisitionError is the single failure of a whole acquisition. It wraps
// the first NetworkError or MalformedResponseError encountered.
type AcquisitionError struct {
	Stage   string
	Locator string
	Err     error
}

func (e *AcquisitionError) Error() string {
	if e.Locator != "" {
		return fmt.Sprintf("acquiring catalog (%s %s): %v", e.Stage, e.Locator, e.Err)
	}
	return fmt.Sprintf("acquiring catalog (%s): %v", e.Stage, e.Err)
}

func (e *AcquisitionError) Unwrap() error { return e.Err }
