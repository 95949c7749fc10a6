// Package walker extracts every archive in a directory tree in place,
// without descending into what the archives contain.
package walker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"sort"

	"github.com/charmbracelet/log"
	"github.com/jmgilman/go/fs/core"
	"golang.org/x/sync/errgroup"

	"github.com/blurfx/unnest/internal/archive"
	"github.com/blurfx/unnest/internal/progress"
)

// DefaultMaxWorkers bounds parallel extraction when Options.MaxWorkers is
// unset.
const DefaultMaxWorkers = 4

// Options configures a Processor.
type Options struct {
	Parallel    bool
	MaxWorkers  int
	DryRun      bool
	DeleteAfter bool

	Logger   *log.Logger
	Progress progress.Reporter
}

func (o Options) withDefaults() Options {
	if o.MaxWorkers <= 0 {
		o.MaxWorkers = DefaultMaxWorkers
	}
	if o.Logger == nil {
		o.Logger = log.New(io.Discard)
	}
	if o.Progress == nil {
		o.Progress = progress.Nop{}
	}
	return o
}

// Processor walks a tree and extracts the archives it finds.
type Processor struct {
	reg  *archive.Registry
	fsys core.FS
	opts Options
}

// New returns a Processor that resolves archives through reg and walks and
// deletes through fsys.
func New(reg *archive.Registry, fsys core.FS, opts Options) *Processor {
	return &Processor{reg: reg, fsys: fsys, opts: opts.withDefaults()}
}

type candidate struct {
	path string
	x    archive.Extractor
}

type directory struct {
	path     string
	archives []candidate
}

// Process extracts every archive under baseDir. The returned stats combine
// the walk's own directory and archive counts with the extraction outcomes
// recorded by the registry's extractors during this call.
func (p *Processor) Process(ctx context.Context, baseDir string) (archive.Stats, error) {
	before := p.reg.Stats()

	dirs, stats, err := p.collect(baseDir)
	if err != nil {
		return stats, err
	}

	p.opts.Progress.Begin("extracting archives", stats.CompressedFilesFound)
	defer p.opts.Progress.End()

	for _, d := range dirs {
		if err := ctx.Err(); err != nil {
			return p.result(stats, before), err
		}
		if err := p.processDir(ctx, d); err != nil {
			return p.result(stats, before), err
		}
	}
	return p.result(stats, before), nil
}

func (p *Processor) result(stats, before archive.Stats) archive.Stats {
	after := p.reg.Stats()
	stats.SuccessfulExtractions = after.SuccessfulExtractions - before.SuccessfulExtractions
	stats.FailedExtractions = after.FailedExtractions - before.FailedExtractions
	return stats
}

// collect walks the tree once and groups the archives by directory, so
// files produced by extraction are never picked up by the same run.
func (p *Processor) collect(baseDir string) ([]directory, archive.Stats, error) {
	var (
		dirs  []directory
		stats archive.Stats
		index = make(map[string]int)
	)

	root, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, stats, fmt.Errorf("%w: %v", archive.ErrIO, err)
	}
	p.opts.Progress.Begin("scanning directories", -1)
	defer p.opts.Progress.End()

	err = p.fsys.Walk(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if filepath.Clean(filepath.FromSlash(path)) == root {
				return fmt.Errorf("%w: %s: %v", archive.ErrMissingInput, baseDir, err)
			}
			p.opts.Logger.Warn("skipping unreadable path", "path", path, "err", err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		path = filepath.FromSlash(path)
		if d.IsDir() {
			stats.DirectoriesProcessed++
			index[path] = len(dirs)
			dirs = append(dirs, directory{path: path})
			p.opts.Progress.Step(path)
			p.opts.Logger.Debug("processing directory", "dir", path)
			return nil
		}

		x, ok := p.reg.Resolve(path)
		if !ok {
			return nil
		}
		stats.CompressedFilesFound++
		i, ok := index[filepath.Dir(path)]
		if !ok {
			return nil
		}
		dirs[i].archives = append(dirs[i].archives, candidate{path: path, x: x})
		return nil
	})
	if err != nil {
		return nil, stats, err
	}

	for i := range dirs {
		sort.Slice(dirs[i].archives, func(a, b int) bool {
			return dirs[i].archives[a].path < dirs[i].archives[b].path
		})
	}
	return dirs, stats, nil
}

func (p *Processor) processDir(ctx context.Context, d directory) error {
	if len(d.archives) == 0 {
		return nil
	}
	p.opts.Logger.Info("processing directory", "dir", d.path, "archives", len(d.archives))

	if !p.opts.Parallel || len(d.archives) == 1 {
		for _, c := range d.archives {
			if err := ctx.Err(); err != nil {
				return err
			}
			p.extract(ctx, c)
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.MaxWorkers)
	for _, c := range d.archives {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			p.extract(gctx, c)
			return nil
		})
	}
	err := g.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ctx.Err()
	}
	return err
}

// extract runs one archive. Extraction failures are recorded by the
// extractor's counters and never stop the walk.
func (p *Processor) extract(ctx context.Context, c candidate) {
	defer p.opts.Progress.Step(c.path)
	logger := p.opts.Logger.With("archive", c.path, "format", c.x.Name())

	if p.opts.DryRun {
		logger.Info("would extract", "target", filepath.Dir(c.path))
		return
	}
	if err := c.x.Extract(ctx, c.path, ""); err != nil {
		return
	}
	if p.opts.DeleteAfter {
		if err := p.fsys.Remove(c.path); err != nil {
			logger.Warn("could not delete archive", "err", err)
			return
		}
		logger.Debug("deleted archive")
	}
}
