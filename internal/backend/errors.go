package backend

import (
	"errors"
	"fmt"
)

// Operation names used in errors, logs and metrics.
const (
	OpParseTemplate     = "parse_template"
	OpParseDataBundle   = "parse_data_bundle"
	OpGenerateBlueprint = "generate_blueprint"
	OpGenerateYaml      = "generate_yaml"
	OpHealth            = "health"
)

// TransportError reports a network failure or a non-2xx reply.
type TransportError struct {
	Op         string
	StatusCode int
	// Detail is the backend's error detail when the body carried one.
	Detail string
	Err    error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Detail != "":
		return fmt.Sprintf("backend %s: status %d: %s", e.Op, e.StatusCode, e.Detail)
	case e.StatusCode != 0:
		return fmt.Sprintf("backend %s: status %d", e.Op, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("backend %s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("backend %s: transport failure", e.Op)
	}
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ShapeError reports a well-formed HTTP reply carrying the wrong payload.
type ShapeError struct {
	Op     string
	Reason string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("backend %s: unexpected response shape: %s", e.Op, e.Reason)
}

// IsTransport reports whether err is a TransportError.
func IsTransport(err error) bool {
	var target *TransportError
	return errors.As(err, &target)
}

// IsShape reports whether err is a ShapeError.
func IsShape(err error) bool {
	var target *ShapeError
	return errors.As(err, &target)
}

// Detail returns the backend-provided detail of a TransportError, if any.
func Detail(err error) string {
	var target *TransportError
	if errors.As(err, &target) {
		return target.Detail
	}
	return ""
}
