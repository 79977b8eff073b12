package config

import (
	"errors"
	"fmt"
)

// Sentinel errors for load and validation failures. Callers branch with
// errors.Is; the wrapping types below add file and component context.
var (
	ErrConfigNotFound       = errors.New("configuration file not found")
	ErrInvalidYAML          = errors.New("invalid YAML syntax")
	ErrValidationFailed     = errors.New("configuration validation failed")
	ErrProfileNotFound      = errors.New("agent profile not found")
	ErrMCPServerNotFound    = errors.New("MCP server not found")
	ErrInvalidReference     = errors.New("invalid configuration reference")
	ErrMissingRequiredField = errors.New("missing required field")
	ErrInvalidValue         = errors.New("invalid field value")
)

// ValidationError pins a validation failure to the component and field that
// caused it, so an operator can find the offending YAML line.
type ValidationError struct {
	Component string // swarm, llm, agent_profile, mcp_server, ...
	ID        string
	Field     string // optional
	Err       error
}

func NewValidationError(component, id, field string, err error) *ValidationError {
	return &ValidationError{Component: component, ID: id, Field: field, Err: err}
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s '%s': field '%s': %v", e.Component, e.ID, e.Field, e.Err)
	}
	return fmt.Sprintf("%s '%s': %v", e.Component, e.ID, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// LoadError carries the file a load failure came from.
type LoadError struct {
	File string
	Err  error
}

func NewLoadError(file string, err error) *LoadError {
	return &LoadError{File: file, Err: err}
}

func (e *LoadError) Error() string { return fmt.Sprintf("failed to load %s: %v", e.File, e.Err) }

func (e *LoadError) Unwrap() error { return e.Err }
