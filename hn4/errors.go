package hn4

import (
	"errors"
	"fmt"
)

// Code is a stable, ABI-namespaced error code, per spec.md §7.
type Code int

const (
	CodeOK Code = iota

	// Discovery
	CodeBadSuperblock
	CodeWipePending
	CodeTampered
	CodeUninitialized

	// Geometry
	CodeGeometry
	CodeAlignmentFail
	CodeBitmapCorrupt

	// Compatibility
	CodeVersionIncompat

	// State
	CodeVolumeLocked
	CodeBusy

	// Time/integrity
	CodeMediaToxic
	CodeTimeDilation
	CodeGenerationSkew
	CodeDataRot
	CodePhantomBlock

	// Identity
	CodeNotFound
	CodeAccessDenied

	// Resource
	CodeNoMem
	CodeHWIO
	CodeThermalCritical
	CodeInternalFault

	// Input
	CodeInvalidArgument
	CodeProfileMismatch
)

var codeNames = map[Code]string{
	CodeOK:              "OK",
	CodeBadSuperblock:   "BAD_SUPERBLOCK",
	CodeWipePending:     "WIPE_PENDING",
	CodeTampered:        "TAMPERED",
	CodeUninitialized:   "UNINITIALIZED",
	CodeGeometry:        "GEOMETRY",
	CodeAlignmentFail:   "ALIGNMENT_FAIL",
	CodeBitmapCorrupt:   "BITMAP_CORRUPT",
	CodeVersionIncompat: "VERSION_INCOMPAT",
	CodeVolumeLocked:    "VOLUME_LOCKED",
	CodeBusy:            "BUSY",
	CodeMediaToxic:      "MEDIA_TOXIC",
	CodeTimeDilation:    "TIME_DILATION",
	CodeGenerationSkew:  "GENERATION_SKEW",
	CodeDataRot:         "DATA_ROT",
	CodePhantomBlock:    "PHANTOM_BLOCK",
	CodeNotFound:        "NOT_FOUND",
	CodeAccessDenied:    "ACCESS_DENIED",
	CodeNoMem:           "NOMEM",
	CodeHWIO:            "HW_IO",
	CodeThermalCritical: "THERMAL_CRITICAL",
	CodeInternalFault:   "INTERNAL_FAULT",
	CodeInvalidArgument: "INVALID_ARGUMENT",
	CodeProfileMismatch: "PROFILE_MISMATCH",
}

// Error is the single error type the engine returns. It carries a stable
// Code for ABI purposes and wraps an optional underlying cause.
type Error struct {
	Code Code
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("hn4: %s: %s: %v", codeNames[e.Code], e.Msg, e.Err)
	}
	return fmt.Sprintf("hn4: %s: %s", codeNames[e.Code], e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is makes errors.Is(err, hn4.ErrVolumeLocked) (etc.) work against a
// sentinel constructed with the same Code, regardless of Msg/Err.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func newErr(code Code, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

func wrapErr(code Code, msg string, cause error) *Error {
	return &Error{Code: code, Msg: msg, Err: cause}
}

// Sentinel errors, one per taxonomy entry, for use with errors.Is.
var (
	ErrBadSuperblock   = newErr(CodeBadSuperblock, "superblock invalid")
	ErrWipePending      = newErr(CodeWipePending, "media carries wipe-pending poison pattern")
	ErrTampered         = newErr(CodeTampered, "superblock mirrors disagree in a way consistent with tampering")
	ErrUninitialized    = newErr(CodeUninitialized, "volume has not been fully formatted")
	ErrGeometry         = newErr(CodeGeometry, "geometry invalid")
	ErrAlignmentFail    = newErr(CodeAlignmentFail, "region misaligned")
	ErrBitmapCorrupt    = newErr(CodeBitmapCorrupt, "bitmap region corrupt")
	ErrVersionIncompat  = newErr(CodeVersionIncompat, "incompatible feature flags")
	ErrVolumeLocked     = newErr(CodeVolumeLocked, "volume locked")
	ErrBusy             = newErr(CodeBusy, "volume busy")
	ErrMediaToxic       = newErr(CodeMediaToxic, "epoch drift beyond tolerance")
	ErrTimeDilation     = newErr(CodeTimeDilation, "epoch pointer is ahead of the superblock")
	ErrGenerationSkew   = newErr(CodeGenerationSkew, "generation mismatch")
	ErrDataRot          = newErr(CodeDataRot, "payload failed integrity check")
	ErrPhantomBlock     = newErr(CodePhantomBlock, "block failed identity/integrity verification")
	ErrNotFound         = newErr(CodeNotFound, "not found")
	ErrAccessDenied     = newErr(CodeAccessDenied, "access denied")
	ErrNoMem            = newErr(CodeNoMem, "out of memory")
	ErrHWIO             = newErr(CodeHWIO, "hardware I/O error")
	ErrThermalCritical  = newErr(CodeThermalCritical, "thermal critical")
	ErrInternalFault    = newErr(CodeInternalFault, "internal fault")
	ErrInvalidArgument  = newErr(CodeInvalidArgument, "invalid argument")
	ErrProfileMismatch  = newErr(CodeProfileMismatch, "profile mismatch")
)

// Strerror returns the stable short name for code, the public API's
// strerror entry point.
func Strerror(code Code) string {
	if s, ok := codeNames[code]; ok {
		return s
	}
	return "UNKNOWN"
}

// CodeOf extracts the Code from err if it is (or wraps) an *Error,
// returning CodeInternalFault otherwise.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternalFault
}
