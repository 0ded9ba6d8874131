package fileresolver

import "fmt"

// Reason classifies why a file reference could not be turned into PDF bytes
type Reason string

const (
	ReasonNotFound         Reason = "not_found"
	ReasonPermissionDenied Reason = "permission_denied"
	ReasonInvalidURL       Reason = "invalid_url"
	ReasonTimeout          Reason = "timeout"
	ReasonNotAPDF          Reason = "not_a_pdf"
)

// FileAccessError is returned for every failure to acquire a file. The reason is kept
// separate from the message so callers can tell configuration problems from permission
// problems without parsing text.
type FileAccessError struct {
	Reason  Reason
	Source  string // filename or URL the caller handed in
	Message string
	Err     error
}

func (e *FileAccessError) Error() string {
	msg := fmt.Sprintf("cannot access %s: %s (%s)", e.Source, e.Message, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FileAccessError) Unwrap() error {
	return e.Err
}

func accessError(reason Reason, source, message string, err error) *FileAccessError {
	return &FileAccessError{Reason: reason, Source: source, Message: message, Err: err}
}
