package formats

import (
	"context"
	"errors"
	"fmt"

	"github.com/blurfx/unnest/internal/archive"
)

// memberError attaches the member name to err and files anything that is
// not already classified (decoder, checksum and header errors) under
// ErrCorrupt.
func memberError(name string, err error) error {
	switch {
	case archive.Classify(err) != nil,
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, archive.ErrPasswordRequired),
		errors.Is(err, archive.ErrWrongPassword),
		errors.Is(err, archive.ErrAuthenticationFailed):
		return fmt.Errorf("%s: %w", name, err)
	case errors.Is(err, archive.ErrUnsupportedMethod),
		errors.Is(err, archive.ErrUnsupportedEncryption):
		return fmt.Errorf("%w: %s: %w", archive.ErrUnsupportedFormat, name, err)
	}
	return fmt.Errorf("%w: %s: %v", archive.ErrCorrupt, name, err)
}

// skipUnsafe reports whether a member failure can be logged and skipped
// under the lenient policy.
func skipUnsafe(opts archive.ExtractOptions, err error) bool {
	return !opts.Strict && errors.Is(err, archive.ErrUnsafeContent)
}
