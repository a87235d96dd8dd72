package attendance

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrDateNotFound  = errors.New("date not found")
	ErrNameNotFound  = errors.New("name not found")
	ErrSheetNotFound = errors.New("sheet not found")
)

// InputError reports a missing or malformed request field.
type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *InputError) Unwrap() error { return ErrInvalidInput }

// LookupError reports that the requested date column or name row does not
// exist in the sheet. Err is ErrDateNotFound or ErrNameNotFound.
type LookupError struct {
	Sheet string
	Value string
	Err   error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("sheet %q: %v: %q", e.Sheet, e.Err, e.Value)
}

func (e *LookupError) Unwrap() error { return e.Err }

// StorageError wraps a failure of the Store. Op is "load" or "persist".
type StorageError struct {
	Sheet string
	Op    string
	Err   error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s sheet %q: %v", e.Op, e.Sheet, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
