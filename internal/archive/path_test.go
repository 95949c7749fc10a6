package archive

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecureJoin(t *testing.T) {
	base := t.TempDir()

	tests := []struct {
		name    string
		rel     string
		want    string
		wantErr error
	}{
		{name: "simple file", rel: "file.txt", want: filepath.Join(base, "file.txt")},
		{name: "nested path", rel: "foo/bar/baz.txt", want: filepath.Join(base, "foo", "bar", "baz.txt")},
		{name: "dot segments cleaned", rel: "foo/./bar/../baz.txt", want: filepath.Join(base, "foo", "baz.txt")},
		{name: "leading dot slash", rel: "./dir/", want: filepath.Join(base, "dir")},
		{name: "empty name rejected", rel: "", wantErr: ErrUnsafeContent},
		{name: "blank name rejected", rel: "   ", wantErr: ErrUnsafeContent},
		{name: "absolute path rejected", rel: "/etc/passwd", wantErr: ErrPathTraversal},
		{name: "parent traversal rejected", rel: "../../../etc/passwd", wantErr: ErrPathTraversal},
		{name: "parent only rejected", rel: "..", wantErr: ErrPathTraversal},
		{name: "parent prefix rejected", rel: "../sibling/file.txt", wantErr: ErrPathTraversal},
		{name: "deep climb rejected", rel: "a/b/../../../outside.txt", wantErr: ErrPathTraversal},
		{name: "windows absolute path rejected", rel: "C:\\Windows\\System32", wantErr: ErrPathTraversal},
		{name: "unc path rejected", rel: "//server/share", wantErr: ErrPathTraversal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := SecureJoin(base, tt.rel)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, result)
		})
	}
}

func TestPathTraversalIsUnsafeContent(t *testing.T) {
	_, err := SecureJoin("/safe/directory", "../../etc/passwd")
	require.ErrorIs(t, err, ErrUnsafeContent)
	assert.Equal(t, ErrUnsafeContent, Classify(err))
}

func TestWithin(t *testing.T) {
	tests := []struct {
		root string
		path string
		want bool
	}{
		{"/a/b", "/a/b", true},
		{"/a/b", "/a/b/c", true},
		{"/a/b", "/a/bc", false},
		{"/a/b", "/a", false},
		{"/", "/etc", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Within(tt.root, tt.path), "%s in %s", tt.path, tt.root)
	}
}
