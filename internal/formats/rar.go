package formats

import (
	"context"
	"errors"
	"fmt"
	osexec "os/exec"
	"path/filepath"
	"strings"

	"github.com/jmgilman/go/exec"

	"github.com/blurfx/unnest/internal/archive"
)

// DefaultRarTool is the external decoder looked up when none is configured.
const DefaultRarTool = "unrar"

// Rar extracts .rar archives by running an unrar-compatible tool.
type Rar struct {
	*archive.Base
	tool  string
	unrar exec.Executor
}

// NewRar resolves tool on PATH. A missing tool yields ErrToolUnavailable.
func NewRar(tool string, opts archive.ExtractOptions) (*Rar, error) {
	if tool == "" {
		tool = DefaultRarTool
	}
	path, err := osexec.LookPath(tool)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", archive.ErrToolUnavailable, tool, err)
	}
	return &Rar{
		Base:  archive.NewBase("rar", []string{".rar"}, opts),
		tool:  path,
		unrar: exec.NewWrapper(exec.New(exec.WithInheritEnv()), path),
	}, nil
}

// Tool returns the resolved path of the external decoder.
func (r *Rar) Tool() string { return r.tool }

// Extract implements archive.Extractor.
func (r *Rar) Extract(ctx context.Context, archivePath, targetDir string) error {
	return r.Run(ctx, archivePath, targetDir, r.extract)
}

func (r *Rar) extract(ctx context.Context, src, dst string) error {
	opts := r.Options()

	if opts.Strict {
		if err := r.checkNames(ctx, src, dst); err != nil {
			return err
		}
	}
	if opts.Verify {
		if _, err := r.run(ctx, "t", "-idq", r.passwordFlag(), src); err != nil {
			return fmt.Errorf("%w: %w", archive.ErrCorrupt, err)
		}
	}

	overwrite := "-o-"
	if opts.Overwrite {
		overwrite = "-o+"
	}
	_, err := r.run(ctx, "x", "-y", "-idq", overwrite, r.passwordFlag(), src, dst+string(filepath.Separator))
	return err
}

// checkNames lists the archive and validates every member name.
func (r *Rar) checkNames(ctx context.Context, src, dst string) error {
	res, err := r.run(ctx, "lb", r.passwordFlag(), src)
	if err != nil {
		return err
	}
	for _, name := range strings.Split(strings.ReplaceAll(res.Stdout, "\r\n", "\n"), "\n") {
		if name == "" {
			continue
		}
		if err := archive.CheckMember(dst, name); err != nil {
			return err
		}
	}
	return nil
}

// passwordFlag puts the password on unrar's command line, where it is
// visible in the process list to other local users. "-p-" stops unrar from
// prompting when no password is set.
func (r *Rar) passwordFlag() string {
	if pw := r.Options().Password; pw != "" {
		return "-p" + pw
	}
	return "-p-"
}

// run executes the tool bound to ctx. A non-zero exit becomes
// ErrToolFailure carrying the tool's stderr.
func (r *Rar) run(ctx context.Context, args ...string) (*exec.Result, error) {
	res, err := r.unrar.Clone().WithContext(ctx).Run(args...)
	if err == nil {
		return res, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	var execErr *exec.ExecError
	if errors.As(err, &execErr) {
		msg := strings.TrimSpace(execErr.Stderr)
		if msg == "" {
			msg = strings.TrimSpace(execErr.Stdout)
		}
		return nil, fmt.Errorf("%w: %s %s exited %d: %s",
			archive.ErrToolFailure, filepath.Base(r.tool), args[0], execErr.ExitCode, msg)
	}
	return nil, fmt.Errorf("%w: %v", archive.ErrToolFailure, err)
}
