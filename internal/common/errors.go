// errors.go - Error taxonomy shared by every layer

package common

import (
	"errors"
	"fmt"
)

// Resolution outcomes such as Ambiguous or NoMatch are results, not errors.
// Everything below aborts the operation it is returned from.
var (
	ErrNormalizationInput = errors.New("input is not valid text")
	ErrStoreConflict      = errors.New("alias already points to a different entity")
	ErrStoreUnavailable   = errors.New("store unavailable")
	ErrOCRUnavailable     = errors.New("ocr unavailable")
	ErrEntityNotFound     = errors.New("entity not found")
	ErrInvalidInvoice     = errors.New("invalid invoice")
	ErrUnknownKind        = errors.New("unknown entity kind")
	ErrExportUnavailable  = errors.New("export target unavailable")
)

// ConflictError carries both sides of an alias race
type ConflictError struct {
	Kind      EntityKind
	Alias     string
	Existing  uint
	Requested uint
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s alias %q points to %d, refusing to record %d",
		e.Kind, e.Alias, e.Existing, e.Requested)
}

func (e *ConflictError) Unwrap() error { return ErrStoreConflict }

// LineError tells the caller which line and which kind failed so it can be retried by hand
type LineError struct {
	Line int
	Kind EntityKind
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d (%s): %v", e.Line, e.Kind, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }

// StoreError marks a persistence failure as ErrStoreUnavailable while keeping the driver error
func StoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}

// OCRError marks an OCR collaborator failure
func OCRError(provider string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", provider, ErrOCRUnavailable, err)
}

// ExportError marks a failed hand-off to the accounting system
func ExportError(target string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", target, ErrExportUnavailable, err)
}
