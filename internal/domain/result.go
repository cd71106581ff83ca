package domain

// Status is the outcome of a public operation.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// ErrorKind tags an error envelope so callers can branch without matching
// on the message text.
type ErrorKind string

const (
	KindTransport      ErrorKind = "transport"
	KindAuthRequired   ErrorKind = "auth_required"
	KindInvalidCode    ErrorKind = "invalid_code"
	KindDataIncomplete ErrorKind = "data_incomplete"
	KindUnknown        ErrorKind = "unknown"
)

// Result is the envelope returned by every public operation.
type Result struct {
	Status               Status             `json:"status"`
	Kind                 ErrorKind          `json:"kind,omitempty"`
	Message              string             `json:"message"`
	Data                 any                `json:"data"`
	EquivalencyBreakdown []EquivalencyEntry `json:"equivalencyBreakdown"`
}

// Success builds a success envelope.
func Success(message string, data any) Result {
	return Result{
		Status:               StatusSuccess,
		Message:              message,
		Data:                 data,
		EquivalencyBreakdown: []EquivalencyEntry{},
	}
}

// Failure builds an error envelope of the given kind.
func Failure(kind ErrorKind, message string, data any) Result {
	return Result{
		Status:               StatusError,
		Kind:                 kind,
		Message:              message,
		Data:                 data,
		EquivalencyBreakdown: []EquivalencyEntry{},
	}
}

// OK returns true if the envelope reports success.
func (r Result) OK() bool {
	return r.Status == StatusSuccess
}
