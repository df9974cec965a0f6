// Package pbinerr defines the tagged-sum error kinds shared by every PBIN
// component, so callers can use errors.Is/errors.As instead of string
// matching regardless of which package raised the failure.
package pbinerr

import "fmt"

// Kind tags the category of a PBIN error.
type Kind int

const (
	IO Kind = iota
	Parse
	InvalidData
	Compression
	Decompression
	Delta
	InvalidMagic
	UnsupportedVersion
	UnknownCompression
	InvalidTarget
	TargetNotFound
	PayloadMarkerNotFound
	HeaderTooShort
	ChecksumMismatch
	UnsupportedPlatform
)

func (k Kind) String() string {
	switch k {
	case IO:
		return "io"
	case Parse:
		return "parse"
	case InvalidData:
		return "invalid_data"
	case Compression:
		return "compression"
	case Decompression:
		return "decompression"
	case Delta:
		return "delta"
	case InvalidMagic:
		return "invalid_magic"
	case UnsupportedVersion:
		return "unsupported_version"
	case UnknownCompression:
		return "unknown_compression"
	case InvalidTarget:
		return "invalid_target"
	case TargetNotFound:
		return "target_not_found"
	case PayloadMarkerNotFound:
		return "payload_marker_not_found"
	case HeaderTooShort:
		return "header_too_short"
	case ChecksumMismatch:
		return "checksum_mismatch"
	case UnsupportedPlatform:
		return "unsupported_platform"
	default:
		return "unknown"
	}
}

// Error is the concrete error type returned by every PBIN package.
type Error struct {
	Kind Kind
	Msg  string
	Err  error // wrapped cause, for IO/Compression/Decompression/Delta

	// Populated only for the kinds that carry structured context.
	Target   string // InvalidTarget, TargetNotFound
	Expected string // ChecksumMismatch, HeaderTooShort (as decimal)
	Actual   string // ChecksumMismatch, HeaderTooShort (as decimal)
}

func (e *Error) Error() string {
	switch e.Kind {
	case ChecksumMismatch:
		return fmt.Sprintf("checksum mismatch: expected %s, got %s", e.Expected, e.Actual)
	case HeaderTooShort:
		return fmt.Sprintf("header too short: expected at least %s bytes, got %s", e.Expected, e.Actual)
	case InvalidTarget:
		return fmt.Sprintf("invalid target: %s", e.Target)
	case TargetNotFound:
		return fmt.Sprintf("target not found in manifest: %s", e.Target)
	case PayloadMarkerNotFound:
		return "payload marker \"__PBIN_PAYLOAD__\" not found"
	case UnsupportedPlatform:
		return "current platform is not supported"
	}
	if e.Err != nil {
		if e.Msg != "" {
			return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
		}
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is allows errors.Is(err, pbinerr.New(Kind, "")) style sentinel comparison
// by kind alone, ignoring message/context.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}

// New builds a bare Error of the given kind with a message.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap builds an Error of the given kind that carries an underlying cause.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// Sentinels for errors.Is comparisons against a bare kind.
var (
	ErrPayloadMarkerNotFound = &Error{Kind: PayloadMarkerNotFound}
	ErrUnsupportedPlatform   = &Error{Kind: UnsupportedPlatform}
)

// Checksum builds the ChecksumMismatch variant.
func Checksum(expected, actual string) *Error {
	return &Error{Kind: ChecksumMismatch, Expected: expected, Actual: actual}
}

// HeaderShort builds the HeaderTooShort variant.
func HeaderShort(expected, actual int) *Error {
	return &Error{Kind: HeaderTooShort, Expected: fmt.Sprintf("%d", expected), Actual: fmt.Sprintf("%d", actual)}
}

// InvalidTargetErr builds the InvalidTarget variant.
func InvalidTargetErr(target string) *Error {
	return &Error{Kind: InvalidTarget, Target: target}
}

// TargetNotFoundErr builds the TargetNotFound variant.
func TargetNotFoundErr(target string) *Error {
	return &Error{Kind: TargetNotFound, Target: target}
}
