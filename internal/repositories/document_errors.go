package repositories

import "fmt"

// InvalidDocumentError reports a stored document whose fields cannot be used. It reads as not
// found so callers fall back to their defaults instead of trusting a partial value.
type InvalidDocumentError struct {
	Collection string
	ID         string
	Err        error
}

func (e *InvalidDocumentError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s/%s: invalid document: %v", e.Collection, e.ID, e.Err)
}

func (e *InvalidDocumentError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *InvalidDocumentError) IsNotFound() bool    { return e != nil }
func (e *InvalidDocumentError) IsConflict() bool    { return false }
func (e *InvalidDocumentError) IsUnavailable() bool { return false }

var _ RepositoryError = (*InvalidDocumentError)(nil)
