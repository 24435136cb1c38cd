package agent

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError is a Decision Validator hard failure. It aborts the run.
type ValidationError struct {
	Errors   []string
	Warnings []string
}

func (e *ValidationError) Error() string {
	return "decision validation failed: " + strings.Join(e.Errors, "; ")
}

// OracleError wraps a failed or malformed oracle call.
type OracleError struct {
	Stage string
	Err   error
}

func (e *OracleError) Error() string {
	return fmt.Sprintf("oracle call failed during %s: %v", e.Stage, e.Err)
}

func (e *OracleError) Unwrap() error {
	return e.Err
}

// NewOracleError wraps err unless it already is an OracleError.
func NewOracleError(stage string, err error) error {
	var oe *OracleError
	if errors.As(err, &oe) {
		return err
	}
	return &OracleError{Stage: stage, Err: err}
}

// NotFoundError is a lookup-by-id miss. Non-fatal.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// ConfigurationError signals a missing external capability.
type ConfigurationError struct {
	Capability string
	Reason     string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Capability, e.Reason)
}

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsOracle(err error) bool {
	var oe *OracleError
	return errors.As(err, &oe)
}
