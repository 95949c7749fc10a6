// Package nested unwraps archives found inside archives, up to a depth
// limit, extracting each distinct archive at most once per run.
package nested

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/jmgilman/go/fs/billy"
	"github.com/jmgilman/go/fs/core"

	"github.com/blurfx/unnest/internal/archive"
	"github.com/blurfx/unnest/internal/progress"
)

// DefaultMaxDepth bounds nesting when Options.MaxDepth is unset.
const DefaultMaxDepth = 5

// Options configures an Engine.
type Options struct {
	// MaxDepth is the number of nesting levels that are extracted.
	MaxDepth int

	// DryRun logs what would be extracted without touching the disk.
	DryRun bool

	// DeleteAfter removes each archive after it extracted successfully.
	DeleteAfter bool

	// FS creates extraction directories and deletes sources.
	FS core.FS

	Logger   *log.Logger
	Progress progress.Reporter
}

func (o Options) withDefaults() Options {
	if o.MaxDepth <= 0 {
		o.MaxDepth = DefaultMaxDepth
	}
	if o.FS == nil {
		o.FS = billy.NewLocal()
	}
	if o.Logger == nil {
		o.Logger = log.New(io.Discard)
	}
	if o.Progress == nil {
		o.Progress = progress.Nop{}
	}
	return o
}

// Summary is the outcome of a nested run.
type Summary struct {
	Successful int
	Failed     int

	// Stats holds the run's own counters. They are separate from the
	// per-extractor counters in the registry.
	Stats archive.Stats

	// Err is set when the run stopped early because ctx was done.
	Err error
}

// Engine drives nested extraction.
type Engine struct {
	reg  *archive.Registry
	opts Options
}

// New returns an Engine resolving archives through reg.
func New(reg *archive.Registry, opts Options) *Engine {
	return &Engine{reg: reg, opts: opts.withDefaults()}
}

type workItem struct {
	dir   string
	depth int
}

// Run starts a fresh traversal of dir at depth 0.
func (e *Engine) Run(ctx context.Context, dir string) Summary {
	return e.Continue(ctx, NewTraversal(), dir, 0)
}

// Continue traverses dir at depth within an existing traversal, so archives
// it has already attempted are skipped and its counters keep accumulating.
func (e *Engine) Continue(ctx context.Context, t *Traversal, dir string, depth int) Summary {
	e.opts.Progress.Begin("unwrapping nested archives", -1)
	defer e.opts.Progress.End()

	var runErr error
	stack := []workItem{{dir: dir, depth: depth}}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			runErr = err
			e.opts.Logger.Warn("traversal cancelled", "err", err)
			break
		}
		item := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		stack = append(stack, e.scan(ctx, t, item)...)
	}

	stats := t.Stats()
	return Summary{
		Successful: stats.SuccessfulExtractions,
		Failed:     stats.FailedExtractions,
		Stats:      stats,
		Err:        runErr,
	}
}

// scan processes the files of one directory and returns the directories to
// visit next. Extraction targets come first in the result so that sibling
// subdirectories, pushed after them, are popped first.
func (e *Engine) scan(ctx context.Context, t *Traversal, item workItem) []workItem {
	logger := e.opts.Logger.With("dir", item.dir, "depth", item.depth)

	info, err := os.Stat(item.dir)
	if err != nil || !info.IsDir() {
		logger.Error("directory not found")
		t.add(archive.Stats{FailedExtractions: 1})
		return nil
	}
	if item.depth >= e.opts.MaxDepth {
		logger.Info("maximum depth reached, not descending")
		return nil
	}

	entries, err := os.ReadDir(item.dir)
	if err != nil {
		logger.Error("cannot read directory", "err", err)
		t.add(archive.Stats{FailedExtractions: 1})
		return nil
	}
	t.add(archive.Stats{DirectoriesProcessed: 1})

	var next, subdirs []workItem
	queued := make(map[string]struct{})
	for _, entry := range entries {
		path := filepath.Join(item.dir, entry.Name())
		fi, err := os.Stat(path)
		if err != nil {
			logger.Warn("skipping unreadable entry", "path", path, "err", err)
			continue
		}

		if fi.IsDir() {
			if entry.Type()&fs.ModeSymlink == 0 && !archive.IsExtractedDir(entry.Name()) {
				subdirs = append(subdirs, workItem{dir: path, depth: item.depth})
			}
			continue
		}
		if !fi.Mode().IsRegular() {
			continue
		}
		// a.zip and a.tar.gz share a_extracted; it is scanned once.
		if target, ok := e.handle(ctx, t, path, fi, item.depth); ok {
			if _, dup := queued[target]; dup {
				continue
			}
			queued[target] = struct{}{}
			next = append(next, workItem{dir: target, depth: item.depth + 1})
		}
	}

	for i := len(subdirs) - 1; i >= 0; i-- {
		next = append(next, subdirs[i])
	}
	return next
}

// handle extracts one candidate file. It returns the extraction target and
// true when the traversal should descend into it.
func (e *Engine) handle(ctx context.Context, t *Traversal, path string, fi os.FileInfo, depth int) (string, bool) {
	x, ext, ok := e.reg.Match(path)
	if !ok {
		return "", false
	}
	t.add(archive.Stats{CompressedFilesFound: 1})
	logger := e.opts.Logger.With("archive", path, "depth", depth)

	if !t.claim(path, fi) {
		logger.Warn("archive already visited, skipping")
		return "", false
	}

	target := archive.ExtractedDir(path, ext)
	if e.opts.DryRun {
		logger.Info("would extract", "format", x.Name(), "target", target)
		return "", false
	}

	defer e.opts.Progress.Step(path)
	if err := e.opts.FS.MkdirAll(target, 0o755); err != nil {
		logger.Error("cannot create extraction directory", "target", target, "err", err)
		t.add(archive.Stats{FailedExtractions: 1})
		return "", false
	}
	if err := x.Extract(ctx, path, target); err != nil {
		t.add(archive.Stats{FailedExtractions: 1})
		return "", false
	}
	t.add(archive.Stats{SuccessfulExtractions: 1})

	if e.opts.DeleteAfter {
		if err := e.opts.FS.Remove(path); err != nil {
			logger.Warn("could not delete archive", "err", err)
		} else {
			t.release(fi)
			logger.Debug("deleted archive")
		}
	}

	return target, depth < e.opts.MaxDepth-1
}
