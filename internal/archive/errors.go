package archive

import (
	"errors"
	"fmt"
)

// Failure classes shared by every extractor.
var (
	// ErrMissingInput indicates the archive or directory does not exist.
	ErrMissingInput = errors.New("archive: missing input")

	// ErrUnsupportedFormat indicates no extractor handles the file.
	ErrUnsupportedFormat = errors.New("archive: unsupported format")

	// ErrCorrupt indicates the archive failed its integrity check.
	ErrCorrupt = errors.New("archive: corrupt archive")

	// ErrUnsafeContent indicates a member that would escape the target directory.
	ErrUnsafeContent = errors.New("archive: unsafe content")

	// ErrToolUnavailable indicates an external decoder could not be found.
	ErrToolUnavailable = errors.New("archive: external tool unavailable")

	// ErrToolFailure indicates an external decoder exited unsuccessfully.
	ErrToolFailure = errors.New("archive: external tool failed")

	// ErrIO indicates a filesystem error while writing output.
	ErrIO = errors.New("archive: i/o error")
)

// Codec-level errors.
var (
	// ErrUnsupportedMethod indicates an unsupported compression method.
	ErrUnsupportedMethod = errors.New("archive: unsupported compression method")

	// ErrPasswordRequired indicates an encrypted member and no password.
	ErrPasswordRequired = errors.New("archive: password required")

	// ErrWrongPassword indicates the provided password is incorrect.
	ErrWrongPassword = errors.New("archive: wrong password")

	// ErrUnsupportedEncryption indicates an unsupported encryption method.
	ErrUnsupportedEncryption = errors.New("archive: unsupported encryption method")

	// ErrAuthenticationFailed indicates MAC verification failed.
	ErrAuthenticationFailed = errors.New("archive: authentication failed")

	// ErrPathTraversal indicates an attempt to write outside the destination directory.
	ErrPathTraversal = fmt.Errorf("%w: path traversal detected", ErrUnsafeContent)
)

// Error records a failed extraction step together with the archive it
// happened in.
type Error struct {
	Op      string // "verify", "extract", "open", ...
	Format  string // extractor name
	Archive string // archive path
	Err     error
}

func (e *Error) Error() string {
	if e.Format != "" {
		return fmt.Sprintf("%s %s %s: %v", e.Format, e.Op, e.Archive, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Archive, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps err with the operation, format and archive path. A nil err
// yields nil.
func NewError(op, format, archivePath string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Format: format, Archive: archivePath, Err: err}
}

// Classify returns the failure class sentinel err belongs to, or nil when
// err matches none of them.
func Classify(err error) error {
	for _, class := range []error{
		ErrMissingInput,
		ErrUnsupportedFormat,
		ErrCorrupt,
		ErrUnsafeContent,
		ErrToolUnavailable,
		ErrToolFailure,
		ErrIO,
	} {
		if errors.Is(err, class) {
			return class
		}
	}
	return nil
}
