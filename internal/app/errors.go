package app

import "fmt"

// DomainError carries the HTTP status and machine-readable code that the
// REST layer serializes into error envelopes, e.g. 403 FORBIDDEN when a
// viewer tries to edit or 409 VERSION_CONFLICT on a stale block write.
type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}
