// Package diskerr enumerates the error kinds the disk core produces.
// Errors are values, not exceptions: parse, nibblize, and decode failures
// return one of these kinds, and a caller can recover the Kind with KindOf
// even after the error is wrapped with github.com/pkg/errors. storageunit
// returns its own sentinel errors for mount and save failures and records
// the Kind in the drive status.
package diskerr

import "github.com/pkg/errors"

// Kind enumerates the error categories the disk core produces.
type Kind int

const (
	// None is the zero value: no error.
	None Kind = iota
	// InvalidImage covers parse failures: wrong magic, wrong header size,
	// a truncated chunk, or a nibblization precondition that does not hold.
	InvalidImage
	// ImageNotSupported covers an unknown file extension or a geometry that
	// does not map to any drive.
	ImageNotSupported
	// VersionNotSupported covers a WOZ file whose version exceeds what this
	// module understands (WOZ2 only; version > 2 fails here).
	VersionNotSupported
	// MountFailed covers file I/O errors during mount, or a geometry
	// mismatch between the image and the target drive.
	MountFailed
	// SaveFailed covers a decode that produced more bytes than expected, or
	// a failed file write.
	SaveFailed
)

func (k Kind) String() string {
	switch k {
	case None:
		return "None"
	case InvalidImage:
		return "InvalidImage"
	case ImageNotSupported:
		return "ImageNotSupported"
	case VersionNotSupported:
		return "VersionNotSupported"
	case MountFailed:
		return "MountFailed"
	case SaveFailed:
		return "SaveFailed"
	default:
		return "Unknown"
	}
}

// diskError is the concrete error type carrying a Kind.
type diskError struct {
	kind Kind
	msg  string
}

func (e *diskError) Error() string { return e.msg }

// New returns an error of the given kind with a fixed message.
func New(kind Kind, msg string) error {
	return &diskError{kind: kind, msg: msg}
}

// Newf returns an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) error {
	return &diskError{kind: kind, msg: errors.Errorf(format, args...).Error()}
}

// Wrap returns an error of the given kind whose message is message followed
// by err's message. Only err's text is kept: err itself is not reachable
// through errors.Cause, so KindOf reports kind.
func Wrap(kind Kind, err error, message string) error {
	if err == nil {
		return nil
	}
	return &diskError{kind: kind, msg: errors.Wrap(err, message).Error()}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(kind Kind, err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return &diskError{kind: kind, msg: errors.Wrapf(err, format, args...).Error()}
}

// KindOf unwraps err (following pkg/errors Cause chains) and returns its
// Kind, or None if err is nil or not one of this package's errors.
func KindOf(err error) Kind {
	if err == nil {
		return None
	}
	cause := errors.Cause(err)
	if de, ok := cause.(*diskError); ok {
		return de.kind
	}
	return None
}
