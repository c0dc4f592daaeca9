package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation     = errors.New("validation failed")
	ErrURLRejected    = errors.New("image url rejected")
	ErrSchemaMismatch = errors.New("schema mismatch")
	ErrMalformedInput = errors.New("malformed input")
	ErrInputNotFound  = errors.New("input not found")
	ErrPartialFailure = errors.New("partial failure")
)

// ValidationError lists the required fields a listing was missing.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("missing required fields: %s", strings.Join(e.Fields, ", "))
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// ResultCode is the outcome reported by file-level operations.
type ResultCode string

const (
	ResultSuccess        ResultCode = "Success"
	ResultInputNotFound  ResultCode = "InputNotFound"
	ResultSchemaMismatch ResultCode = "SchemaMismatch"
	ResultMalformedInput ResultCode = "MalformedInput"
	ResultPartialFailure ResultCode = "PartialFailure"
	ResultFailure        ResultCode = "Failure"
)

// ResultCodeFor classifies an error returned by a file-level operation.
func ResultCodeFor(err error) ResultCode {
	switch {
	case err == nil:
		return ResultSuccess
	case errors.Is(err, ErrInputNotFound):
		return ResultInputNotFound
	case errors.Is(err, ErrSchemaMismatch):
		return ResultSchemaMismatch
	case errors.Is(err, ErrMalformedInput):
		return ResultMalformedInput
	case errors.Is(err, ErrPartialFailure):
		return ResultPartialFailure
	default:
		return ResultFailure
	}
}

// ExitCode maps a result code to a process exit status.
func (c ResultCode) ExitCode() int {
	switch c {
	case ResultSuccess:
		return 0
	case ResultInputNotFound:
		return 2
	case ResultSchemaMismatch, ResultMalformedInput:
		return 3
	case ResultPartialFailure:
		return 4
	default:
		return 1
	}
}
