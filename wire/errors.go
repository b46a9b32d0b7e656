package wire

import (
	"fmt"
)

type (
	// ServerError is a non-zero error code embedded in an otherwise
	// well-formed response envelope.
	ServerError struct {
		Code    int
		Message string
	}

	// ParseError is malformed XML or JSON; Line is 0 when the decoder
	// gave no position hint.
	ParseError struct {
		Line    int
		Message string
	}

	// TransportError is a network or HTTP level failure.
	TransportError struct {
		StatusCode int
		Err        error
	}

	// UnsupportedError marks a capability the active grammar cannot
	// express.
	UnsupportedError struct {
		Operation string
		Grammar   string
	}

	// VersionError is a server older than the minimum this library
	// speaks to.
	VersionError struct {
		Version string
		Minimum string
	}
)

func (r ServerError) Error() string {
	if r.Message == "" {
		return fmt.Sprintf("server returned error code %d", r.Code)
	}
	return fmt.Sprintf("server returned error code %d: %s", r.Code, r.Message)
}

func (r ParseError) Error() string {
	if r.Line > 0 {
		return fmt.Sprintf("response parse error at line %d: %s", r.Line, r.Message)
	}
	return fmt.Sprintf("response parse error: %s", r.Message)
}

func (r TransportError) Error() string {
	if r.StatusCode > 0 {
		return fmt.Sprintf("transport error (status %d): %v", r.StatusCode, r.Err)
	}
	return fmt.Sprintf("transport error: %v", r.Err)
}

func (r TransportError) Unwrap() error {
	return r.Err
}

func (r UnsupportedError) Error() string {
	return fmt.Sprintf(`operation "%s" is not supported by the %s grammar`, r.Operation, r.Grammar)
}

func (r VersionError) Error() string {
	return fmt.Sprintf("server version %s is older than the minimum supported %s", r.Version, r.Minimum)
}
