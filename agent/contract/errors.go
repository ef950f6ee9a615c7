package contract

import "errors"

var (
	ErrModelInvoke     = errors.New("model invoke failed")
	ErrSchemaViolation = errors.New("model response violates schema")
	ErrPromptMissing   = errors.New("required prompt is missing")
	ErrValidation      = errors.New("validation failed")
)

// ErrorKind classifies an operation failure so the model can decide what to do next.
type ErrorKind string

const (
	KindUnknownOperation    ErrorKind = "UnknownOperation"
	KindInvalidArguments    ErrorKind = "InvalidArguments"
	KindIllegalTransition   ErrorKind = "IllegalTransition"
	KindNotFound            ErrorKind = "NotFound"
	KindUpstreamUnavailable ErrorKind = "UpstreamUnavailable"
)

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// OperationError is returned to the model inside a tool result. It is never fatal to a turn.
type OperationError struct {
	Kind          ErrorKind    `json:"kind"`
	Message       string       `json:"message"`
	Fields        []FieldError `json:"fields,omitempty"`
	CurrentStatus string       `json:"currentStatus,omitempty"`
}

func (e *OperationError) Error() string {
	if e == nil {
		return ""
	}
	return string(e.Kind) + ": " + e.Message
}
