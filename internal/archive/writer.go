package archive

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/jmgilman/go/fs/core"
)

// Writer materializes archive members below a root directory, applying the
// path checks and the conflict policy from ExtractOptions.
type Writer struct {
	fsys   core.FS
	root   string
	opts   ExtractOptions
	logger *log.Logger

	mu    sync.Mutex
	links map[string]struct{}
}

// NewWriter returns a Writer rooted at root.
func NewWriter(root string, opts ExtractOptions) *Writer {
	opts = opts.WithDefaults()
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	return &Writer{fsys: opts.FS, root: root, opts: opts, logger: opts.Logger, links: map[string]struct{}{}}
}

// Root returns the absolute root directory.
func (w *Writer) Root() string { return w.root }

// Resolve maps a member name to its absolute destination. A destination
// below a link member written earlier is refused, since the link would
// redirect the write.
func (w *Writer) Resolve(name string) (string, error) {
	path, err := SecureJoin(w.root, name)
	if err != nil {
		return "", err
	}
	if link, ok := w.underLink(path); ok {
		return "", fmt.Errorf("%w: %q is below link %q", ErrPathTraversal, name, link)
	}
	return path, nil
}

// Dir creates the directory for a member.
func (w *Writer) Dir(name string) error {
	path, err := w.Resolve(name)
	if err != nil {
		return err
	}
	if err := w.fsys.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	return nil
}

// File writes the contents of r to the member's destination. It reports
// false when the member was skipped because the file exists and
// SkipExisting is set. Errors from r are returned unwrapped so decoder
// failures keep their class.
func (w *Writer) File(name string, mode fs.FileMode, r io.Reader) (bool, error) {
	path, err := w.Resolve(name)
	if err != nil {
		return false, err
	}

	exists, err := w.fsys.Exists(path)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrIO, err)
	}
	if exists {
		switch {
		case w.opts.Overwrite:
		case w.opts.SkipExisting:
			w.logger.Debug("skipping existing file", "path", path)
			return false, nil
		default:
			return false, fmt.Errorf("%w: %s already exists", ErrIO, path)
		}
		if info, err := w.fsys.Stat(path); err == nil && info.IsDir() {
			return false, fmt.Errorf("%w: %s is a directory", ErrIO, path)
		}
	}

	if err := w.fsys.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("%w: %v", ErrIO, err)
	}

	out, err := w.fsys.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, SanitizeMode(mode))
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrIO, err)
	}

	src := &sourceReader{r: r}
	_, copyErr := io.Copy(out, src)
	closeErr := out.Close()

	switch {
	case src.err != nil:
		_ = w.fsys.Remove(path)
		return false, src.err
	case copyErr != nil:
		return false, fmt.Errorf("%w: write %s: %v", ErrIO, path, copyErr)
	case closeErr != nil:
		return false, fmt.Errorf("%w: close %s: %v", ErrIO, path, closeErr)
	}
	return true, nil
}

// Symlink creates a link member when the filesystem supports links and the
// target resolves inside the root. The target is walked one component at a
// time so that neither an intermediate step nor a step through an earlier
// link member can leave the root. Filesystems without link support skip
// the member.
func (w *Writer) Symlink(name, target string) error {
	path, err := w.Resolve(name)
	if err != nil {
		return err
	}
	if filepath.IsAbs(target) || strings.HasPrefix(target, "/") {
		return fmt.Errorf("%w: absolute link target %q", ErrUnsafeContent, target)
	}
	if err := w.checkTarget(name, path, target); err != nil {
		return err
	}

	sfs, ok := w.fsys.(core.SymlinkFS)
	if !ok {
		w.logger.Debug("skipping symlink, filesystem has no link support", "path", path)
		return nil
	}
	if err := w.fsys.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	if err := sfs.Symlink(target, path); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}

	w.mu.Lock()
	w.links[path] = struct{}{}
	w.mu.Unlock()
	return nil
}

func (w *Writer) checkTarget(name, path, target string) error {
	cur := filepath.Dir(path)
	for _, part := range strings.FieldsFunc(target, isSeparator) {
		switch part {
		case ".":
			continue
		case "..":
			cur = filepath.Dir(cur)
		default:
			cur = filepath.Join(cur, part)
		}
		if !Within(w.root, cur) {
			return fmt.Errorf("%w: link %q escapes root via %q", ErrPathTraversal, name, target)
		}
		if link, ok := w.underLink(cur); ok {
			return fmt.Errorf("%w: link %q resolves through link %q", ErrUnsafeContent, name, link)
		}
	}
	return nil
}

// underLink reports the link member that path equals or lies below.
func (w *Writer) underLink(path string) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for link := range w.links {
		if path == link || strings.HasPrefix(path, link+string(filepath.Separator)) {
			return link, true
		}
	}
	return "", false
}

func isSeparator(r rune) bool {
	return r == '/' || r == filepath.Separator
}

// SanitizeMode keeps permission bits only, so setuid, setgid and sticky
// bits from an archive never reach disk. The owner can always read and
// write the result.
func SanitizeMode(mode fs.FileMode) fs.FileMode {
	perm := mode.Perm()
	if perm == 0 {
		return 0o644
	}
	return perm | 0o600
}

// sourceReader records the first read error so the writer can tell decoder
// failures apart from write failures.
type sourceReader struct {
	r   io.Reader
	err error
}

func (s *sourceReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		s.err = err
	}
	return n, err
}
