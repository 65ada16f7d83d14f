package contract

import "errors"

var (
	ErrModelInvoke        = errors.New("model invoke failed")
	ErrSchemaViolation    = errors.New("model response violates schema")
	ErrValidation         = errors.New("validation failed")
	ErrUnknownTool        = errors.New("unknown tool")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTurnNotFound       = errors.New("turn not found")
)
