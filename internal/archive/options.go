package archive

import (
	"io"

	"github.com/charmbracelet/log"
	"github.com/jmgilman/go/fs/billy"
	"github.com/jmgilman/go/fs/core"
)

// DefaultNameEncoding is used to decode member names that are neither
// flagged nor valid as UTF-8.
const DefaultNameEncoding = "cp437"

// ExtractOptions configures archive extraction behavior.
type ExtractOptions struct {
	// Password for encrypted archives. Empty string for unencrypted archives.
	Password string

	// Overwrite replaces existing files. It takes precedence over SkipExisting.
	Overwrite bool

	// SkipExisting leaves existing files untouched. When neither Overwrite
	// nor SkipExisting is set, an existing file fails the member.
	SkipExisting bool

	// Verify runs the format's integrity self-test before writing anything.
	Verify bool

	// Strict fails the whole archive when any member is unsafe instead of
	// skipping that member.
	Strict bool

	// NameEncoding names the legacy charset for member names.
	NameEncoding string

	// FS receives extracted members. Paths given to it are absolute.
	FS core.FS

	// Logger receives per-archive diagnostics.
	Logger *log.Logger
}

// WithDefaults returns a copy of opts with default values applied.
func (opts ExtractOptions) WithDefaults() ExtractOptions {
	if opts.NameEncoding == "" {
		opts.NameEncoding = DefaultNameEncoding
	}
	if opts.FS == nil {
		opts.FS = billy.NewLocal()
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	return opts
}
