package chemstats

import (
	"errors"
	"fmt"
)

// ErrUnauthenticated signals that the backend rejected the credential (401).
// Callers must discard the stored token and force a new login.
var ErrUnauthenticated = errors.New("chemstats: credential rejected")

// AuthError carries the human-readable message for a failed login or
// registration, extracted from the backend response when its shape is
// recognized.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("chemstats: auth failed: %s", e.Message)
}

// UploadError reports a rejected or failed dataset upload.
type UploadError struct {
	Message string
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("chemstats: upload failed: %s", e.Message)
}

// ReportError reports a failed PDF generation or fetch.
type ReportError struct {
	Status  int
	Message string
}

func (e *ReportError) Error() string {
	return fmt.Sprintf("chemstats: report fetch failed: status=%d %s", e.Status, e.Message)
}
