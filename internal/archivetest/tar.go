package archivetest

import (
	"archive/tar"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/mholt/archives"
	"github.com/stretchr/testify/require"
)

// TarEntry describes one member of a tar fixture. A zero Typeflag is a
// regular file.
type TarEntry struct {
	Name     string
	Body     []byte
	Typeflag byte
	Linkname string
	Mode     int64
}

// TarFile is a shorthand for a regular tar member.
func TarFile(name, body string) TarEntry {
	return TarEntry{Name: name, Body: []byte(body)}
}

// compressors keyed by the archive suffix after ".tar" or its short form.
var compressors = map[string]archives.Compressor{
	"":     nil,
	".gz":  archives.Gz{},
	".bz2": archives.Bz2{},
	".xz":  archives.Xz{},
	".zst": archives.Zstd{},
}

// WriteTar writes a tar archive at path, compressed with codec (one of "",
// ".gz", ".bz2", ".xz", ".zst"), and returns path.
func WriteTar(t testing.TB, path, codec string, entries ...TarEntry) string {
	t.Helper()
	comp, ok := compressors[codec]
	require.True(t, ok, "unknown codec %q", codec)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	var w io.Writer = f
	var cw io.WriteCloser
	if comp != nil {
		cw, err = comp.OpenWriter(f)
		require.NoError(t, err)
		w = cw
	}

	tw := tar.NewWriter(w)
	for _, e := range entries {
		hdr := &tar.Header{
			Name:     e.Name,
			Typeflag: e.Typeflag,
			Linkname: e.Linkname,
			Mode:     e.Mode,
		}
		if hdr.Typeflag == 0 {
			hdr.Typeflag = tar.TypeReg
		}
		if hdr.Mode == 0 {
			hdr.Mode = 0o644
			if hdr.Typeflag == tar.TypeDir {
				hdr.Mode = 0o755
			}
		}
		if hdr.Typeflag == tar.TypeReg {
			hdr.Size = int64(len(e.Body))
		}
		require.NoError(t, tw.WriteHeader(hdr))
		if hdr.Size > 0 {
			_, err := tw.Write(e.Body)
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	if cw != nil {
		require.NoError(t, cw.Close())
	}
	return path
}

// TarBytes returns the tar archive built from entries.
func TarBytes(t testing.TB, codec string, entries ...TarEntry) []byte {
	t.Helper()
	path := WriteTar(t, filepath.Join(t.TempDir(), "fixture.tar"+codec), codec, entries...)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}
