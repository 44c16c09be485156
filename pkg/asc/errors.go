package asc

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is classification of the typed errors below.
var (
	ErrBounds          = errors.New("asc: bounds violation")
	ErrTagMismatch     = errors.New("asc: tag mismatch")
	ErrEncoding        = errors.New("asc: encoding error")
	ErrHostImport      = errors.New("asc: host import failed")
	ErrVersionMismatch = errors.New("asc: ABI version mismatch")
	ErrMalformedHeader = errors.New("asc: malformed object header")
	ErrOutOfMemory     = errors.New("asc: arena exhausted")
)

// BoundsViolation occurs when an access falls outside a block's payload or
// outside the memory extent. It always indicates a codec or caller defect.
type BoundsViolation struct {
	Ptr    Ptr
	Offset uint32
	Length uint32
	Limit  uint32
}

func (e *BoundsViolation) Error() string {
	return fmt.Sprintf("bounds violation at %#x: [%d, %d) exceeds %d",
		uint32(e.Ptr), e.Offset, uint64(e.Offset)+uint64(e.Length), e.Limit)
}

func (e *BoundsViolation) Unwrap() error {
	return ErrBounds
}

// TagMismatchError occurs when a pointer is decoded as a shape its header
// does not carry.
type TagMismatchError struct {
	Ptr      Ptr
	Expected string
	Actual   uint32
}

func (e *TagMismatchError) Error() string {
	return fmt.Sprintf("tag mismatch at %#x: expected %s, found runtime id %d",
		uint32(e.Ptr), e.Expected, e.Actual)
}

func (e *TagMismatchError) Unwrap() error {
	return ErrTagMismatch
}

// EncodingError occurs when a payload cannot be interpreted, for example text
// with an unpaired surrogate. Handlers may choose to skip the record.
type EncodingError struct {
	Ptr    Ptr
	Kind   string
	Detail string
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("malformed %s at %#x: %s", e.Kind, uint32(e.Ptr), e.Detail)
}

func (e *EncodingError) Unwrap() error {
	return ErrEncoding
}

// HostImportError occurs when the host signals failure for an import call.
type HostImportError struct {
	Import string
	Err    error
}

func (e *HostImportError) Error() string {
	return fmt.Sprintf("host import '%s' failed: %v", e.Import, e.Err)
}

func (e *HostImportError) Unwrap() []error {
	return []error{ErrHostImport, e.Err}
}

// VersionMismatchError occurs when guest and host disagree on the ABI version
// or on the shape of the import table.
type VersionMismatchError struct {
	Version Version
	Detail  string
}

func (e *VersionMismatchError) Error() string {
	if e.Version.IsZero() {
		return "ABI version mismatch: " + e.Detail
	}
	return fmt.Sprintf("ABI version mismatch (%s): %s", e.Version, e.Detail)
}

func (e *VersionMismatchError) Unwrap() error {
	return ErrVersionMismatch
}

// IsFatal reports whether err must abort the current call rather than being
// surfaced to mapping code.
func IsFatal(err error) bool {
	return errors.Is(err, ErrBounds) ||
		errors.Is(err, ErrTagMismatch) ||
		errors.Is(err, ErrVersionMismatch) ||
		errors.Is(err, ErrMalformedHeader) ||
		errors.Is(err, ErrOutOfMemory)
}
