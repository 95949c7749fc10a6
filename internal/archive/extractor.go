package archive

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
)

// Extractor unpacks one archive format.
type Extractor interface {
	// Name identifies the format in logs and errors.
	Name() string

	// Extensions lists the lower-case suffixes the extractor claims.
	Extensions() []string

	// CanHandle reports whether path carries one of Extensions.
	CanHandle(path string) bool

	// Extract unpacks archivePath into targetDir. An empty targetDir means
	// the archive's own directory. Each call counts exactly one success or
	// one failure in Stats.
	Extract(ctx context.Context, archivePath, targetDir string) error

	// Stats returns the extractor's success and failure counts.
	Stats() Stats
}

// ExtractFunc performs the format-specific part of an extraction. Both
// paths are absolute and the target directory exists.
type ExtractFunc func(ctx context.Context, archivePath, targetDir string) error

// Base carries what every extractor shares: its identity, options and
// counters. Format extractors embed *Base and call Run from Extract.
type Base struct {
	name     string
	exts     []string
	opts     ExtractOptions
	counters Counters
}

// NewBase returns a Base for the named format.
func NewBase(name string, exts []string, opts ExtractOptions) *Base {
	return &Base{
		name: name,
		exts: append([]string(nil), exts...),
		opts: opts.WithDefaults(),
	}
}

func (b *Base) Name() string { return b.name }

func (b *Base) Extensions() []string { return append([]string(nil), b.exts...) }

func (b *Base) CanHandle(path string) bool {
	_, ok := MatchExtension(path, b.exts)
	return ok
}

func (b *Base) Stats() Stats { return b.counters.Snapshot() }

// Options returns the extraction options with defaults applied.
func (b *Base) Options() ExtractOptions { return b.opts }

// Logger returns the extractor's logger.
func (b *Base) Logger() *log.Logger { return b.opts.Logger }

// NewWriter returns a member writer rooted at targetDir.
func (b *Base) NewWriter(targetDir string) *Writer {
	return NewWriter(targetDir, b.opts)
}

// Run resolves paths, invokes fn and records the outcome. Panics inside fn
// are recovered and reported as ErrCorrupt failures.
func (b *Base) Run(ctx context.Context, archivePath, targetDir string, fn ExtractFunc) (err error) {
	logger := b.opts.Logger.With("format", b.name, "archive", archivePath)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: decoder panic: %v", ErrCorrupt, r)
		}
		if err != nil {
			b.counters.Failure()
			err = NewError("extract", b.name, archivePath, err)
			logger.Error("extraction failed", "err", err)
			return
		}
		b.counters.Success()
		logger.Info("extracted", "target", targetDir)
	}()

	if err := ctx.Err(); err != nil {
		return err
	}

	archivePath, targetDir, err = b.prepare(archivePath, targetDir)
	if err != nil {
		return err
	}

	logger.Debug("extracting", "target", targetDir)
	return fn(ctx, archivePath, targetDir)
}

func (b *Base) prepare(archivePath, targetDir string) (string, string, error) {
	src, err := filepath.Abs(archivePath)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrIO, err)
	}
	info, err := os.Stat(src)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return "", "", fmt.Errorf("%w: %s", ErrMissingInput, archivePath)
	case err != nil:
		return "", "", fmt.Errorf("%w: %v", ErrIO, err)
	case info.IsDir():
		return "", "", fmt.Errorf("%w: %s is a directory", ErrMissingInput, archivePath)
	}

	if targetDir == "" {
		targetDir = filepath.Dir(src)
	}
	dst, err := filepath.Abs(targetDir)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrIO, err)
	}
	if err := b.opts.FS.MkdirAll(dst, 0o755); err != nil {
		return "", "", fmt.Errorf("%w: create target: %v", ErrIO, err)
	}
	return src, dst, nil
}
