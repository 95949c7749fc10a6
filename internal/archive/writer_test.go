package archive

import (
	"errors"
	"io/fs"
	"strings"
	"testing"

	"github.com/jmgilman/go/fs/billy"
	"github.com/jmgilman/go/fs/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterConflictPolicy(t *testing.T) {
	tests := []struct {
		name        string
		opts        ExtractOptions
		wantWritten bool
		wantContent string
		wantErr     error
	}{
		{
			name:        "overwrite replaces",
			opts:        ExtractOptions{Overwrite: true, SkipExisting: true},
			wantWritten: true,
			wantContent: "new",
		},
		{
			name:        "skip existing keeps old",
			opts:        ExtractOptions{SkipExisting: true},
			wantContent: "old contents",
		},
		{
			name:        "neither fails member",
			opts:        ExtractOptions{},
			wantContent: "old contents",
			wantErr:     ErrIO,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := billy.NewMemory()
			tt.opts.FS = mem
			w := NewWriter("/out", tt.opts)

			require.NoError(t, mem.MkdirAll("/out", 0o755))
			require.NoError(t, mem.WriteFile("/out/a.txt", []byte("old contents"), 0o644))

			written, err := w.File("a.txt", 0o644, strings.NewReader("new"))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantWritten, written)

			data, err := mem.ReadFile("/out/a.txt")
			require.NoError(t, err)
			assert.Equal(t, tt.wantContent, string(data))
		})
	}
}

func TestWriterRejectsTraversal(t *testing.T) {
	mem := billy.NewMemory()
	w := NewWriter("/out", ExtractOptions{FS: mem})

	_, err := w.File("../escape.txt", 0o644, strings.NewReader("x"))
	require.ErrorIs(t, err, ErrUnsafeContent)

	exists, err := mem.Exists("/escape.txt")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestWriterCreatesParents(t *testing.T) {
	mem := billy.NewMemory()
	w := NewWriter("/out", ExtractOptions{FS: mem})

	written, err := w.File("deep/nested/file.txt", 0o4755, strings.NewReader("payload"))
	require.NoError(t, err)
	assert.True(t, written)

	data, err := mem.ReadFile("/out/deep/nested/file.txt")
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	require.NoError(t, w.Dir("empty/dir"))
	exists, err := mem.Exists("/out/empty/dir")
	require.NoError(t, err)
	assert.True(t, exists)
}

type failingReader struct{ err error }

func (f failingReader) Read([]byte) (int, error) { return 0, f.err }

func TestWriterKeepsSourceErrors(t *testing.T) {
	mem := billy.NewMemory()
	w := NewWriter("/out", ExtractOptions{FS: mem})

	decodeErr := errors.New("checksum mismatch")
	_, err := w.File("bad.bin", 0o644, failingReader{err: decodeErr})
	require.ErrorIs(t, err, decodeErr)
	assert.NotErrorIs(t, err, ErrIO)

	exists, err := mem.Exists("/out/bad.bin")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestWriterSymlinkTargets(t *testing.T) {
	w := NewWriter("/out", ExtractOptions{FS: billy.NewMemory()})

	require.ErrorIs(t, w.Symlink("link", "/etc/passwd"), ErrUnsafeContent)
	require.ErrorIs(t, w.Symlink("dir/link", "../../outside"), ErrPathTraversal)
	// In-root links are skipped without error on filesystems without link support.
	require.NoError(t, w.Symlink("dir/link", "../target"))
}

// linkFS records links instead of creating them.
type linkFS struct {
	core.FS
	links map[string]string
}

func (l *linkFS) Symlink(oldname, newname string) error {
	l.links[newname] = oldname
	return nil
}

func (l *linkFS) Readlink(name string) (string, error) {
	target, ok := l.links[name]
	if !ok {
		return "", fs.ErrNotExist
	}
	return target, nil
}

func TestWriterSymlinkChains(t *testing.T) {
	tests := []struct {
		name      string
		first     [2]string
		link      [2]string
		file      string
		wantErr   error
		wantLinks []string
	}{
		{
			name:      "target steps through earlier link",
			first:     [2]string{"y", "."},
			link:      [2]string{"x", "y/.."},
			wantErr:   ErrUnsafeContent,
			wantLinks: []string{"/out/y"},
		},
		{
			name:      "intermediate step leaves root",
			first:     [2]string{"a/b", "c"},
			link:      [2]string{"x", "../out/z"},
			wantErr:   ErrPathTraversal,
			wantLinks: []string{"/out/a/b"},
		},
		{
			name:      "link name below earlier link",
			first:     [2]string{"y", "."},
			link:      [2]string{"y/x", "z"},
			wantErr:   ErrPathTraversal,
			wantLinks: []string{"/out/y"},
		},
		{
			name:      "file below earlier link",
			first:     [2]string{"y", "."},
			file:      "y/evil.txt",
			wantErr:   ErrPathTraversal,
			wantLinks: []string{"/out/y"},
		},
		{
			name:      "independent links",
			first:     [2]string{"y", "target"},
			link:      [2]string{"x", "other"},
			wantLinks: []string{"/out/x", "/out/y"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := billy.NewMemory()
			lfs := &linkFS{FS: mem, links: map[string]string{}}
			w := NewWriter("/out", ExtractOptions{FS: lfs})

			require.NoError(t, w.Symlink(tt.first[0], tt.first[1]))

			var err error
			if tt.file != "" {
				_, err = w.File(tt.file, 0o644, strings.NewReader("x"))
				exists, existsErr := mem.Exists("/out/" + tt.file)
				require.NoError(t, existsErr)
				assert.False(t, exists)
			} else {
				err = w.Symlink(tt.link[0], tt.link[1])
			}
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}

			got := make([]string, 0, len(lfs.links))
			for path := range lfs.links {
				got = append(got, path)
			}
			assert.ElementsMatch(t, tt.wantLinks, got)
		})
	}
}

func TestSanitizeMode(t *testing.T) {
	tests := []struct {
		in   uint32
		want uint32
	}{
		{0, 0o644},
		{0o755, 0o755},
		{0o4755, 0o755},
		{0o2755 | 0o1000, 0o755},
		{0o400, 0o600},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, uint32(SanitizeMode(fsMode(tt.in))), "mode %o", tt.in)
	}
}

// fsMode converts unix permission bits, including setuid/setgid/sticky, into
// an fs.FileMode.
func fsMode(bits uint32) fs.FileMode {
	mode := fs.FileMode(bits & 0o777)
	if bits&0o4000 != 0 {
		mode |= fs.ModeSetuid
	}
	if bits&0o2000 != 0 {
		mode |= fs.ModeSetgid
	}
	if bits&0o1000 != 0 {
		mode |= fs.ModeSticky
	}
	return mode
}
