package formats

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/mholt/archives"
	"github.com/ulikunitz/xz"

	"github.com/blurfx/unnest/internal/archive"
)

// Compression identifies the stream codec wrapped around a tarball.
type Compression string

const (
	TarPlain Compression = ""
	TarGzip  Compression = "gz"
	TarBzip2 Compression = "bz2"
	TarXZ    Compression = "xz"
	TarZstd  Compression = "zst"
)

type tarCodec struct {
	name string
	exts []string
	open func(io.Reader) (io.ReadCloser, error)
}

var tarCodecs = map[Compression]tarCodec{
	TarPlain: {
		name: "tar",
		exts: []string{".tar"},
		open: func(r io.Reader) (io.ReadCloser, error) { return io.NopCloser(r), nil },
	},
	TarGzip: {
		name: "tar.gz",
		exts: []string{".tar.gz", ".tgz"},
		open: func(r io.Reader) (io.ReadCloser, error) { return gzip.NewReader(r) },
	},
	TarBzip2: {
		name: "tar.bz2",
		exts: []string{".tar.bz2", ".tbz2", ".tbz"},
		open: archives.Bz2{}.OpenReader,
	},
	TarXZ: {
		name: "tar.xz",
		exts: []string{".tar.xz", ".txz"},
		open: func(r io.Reader) (io.ReadCloser, error) {
			xr, err := xz.NewReader(r)
			if err != nil {
				return nil, err
			}
			return io.NopCloser(xr), nil
		},
	},
	TarZstd: {
		name: "tar.zst",
		exts: []string{".tar.zst", ".tzst"},
		open: func(r io.Reader) (io.ReadCloser, error) {
			dec, err := zstd.NewReader(r)
			if err != nil {
				return nil, err
			}
			return dec.IOReadCloser(), nil
		},
	},
}

// CompressionOf reports the tar codec that handles path by suffix.
func CompressionOf(path string) (Compression, bool) {
	best, bestExt := Compression(""), ""
	for c, codec := range tarCodecs {
		if ext, ok := archive.MatchExtension(path, codec.exts); ok && len(ext) > len(bestExt) {
			best, bestExt = c, ext
		}
	}
	return best, bestExt != ""
}

// Tar extracts tarballs with one stream codec.
//
// Unsafe members (empty names, absolute paths, parent escapes, links that
// leave the target) are skipped with a warning by default. With Strict set
// the archive fails before anything is written.
type Tar struct {
	*archive.Base
	codec tarCodec
}

// NewTar returns a tar extractor for compression c.
func NewTar(c Compression, opts archive.ExtractOptions) (*Tar, error) {
	codec, ok := tarCodecs[c]
	if !ok {
		return nil, fmt.Errorf("%w: tar compression %q", archive.ErrUnsupportedFormat, c)
	}
	return &Tar{Base: archive.NewBase(codec.name, codec.exts, opts), codec: codec}, nil
}

// Extract implements archive.Extractor.
func (t *Tar) Extract(ctx context.Context, archivePath, targetDir string) error {
	return t.Run(ctx, archivePath, targetDir, t.extract)
}

func (t *Tar) extract(ctx context.Context, src, dst string) error {
	opts := t.Options()
	w := t.NewWriter(dst)

	if opts.Verify || opts.Strict {
		err := t.scan(ctx, src, func(hdr *tar.Header, _ io.Reader) error {
			if err := checkTarMember(w, hdr); err != nil && opts.Strict {
				return err
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	return t.scan(ctx, src, func(hdr *tar.Header, body io.Reader) error {
		err := t.extractMember(w, hdr, body)
		if skipUnsafe(opts, err) {
			t.Logger().Warn("skipping unsafe member", "archive", src, "member", hdr.Name, "err", err)
			return nil
		}
		return err
	})
}

// scan calls fn for every member of the archive, then drains whatever fn
// left unread so the codec's own checksums are verified.
func (t *Tar) scan(ctx context.Context, src string, fn func(*tar.Header, io.Reader) error) error {
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("%w: %v", archive.ErrIO, err)
	}
	defer f.Close()

	stream, err := t.codec.open(f)
	if err != nil {
		return fmt.Errorf("%w: %v", archive.ErrCorrupt, err)
	}
	defer stream.Close()

	tr := tar.NewReader(stream)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			// Reading past the end-of-archive blocks checks the codec trailer.
			if _, err := io.Copy(io.Discard, stream); err != nil {
				return fmt.Errorf("%w: %v", archive.ErrCorrupt, err)
			}
			return nil
		}
		if err != nil && !(errors.Is(err, tar.ErrInsecurePath) && hdr != nil) {
			return fmt.Errorf("%w: %v", archive.ErrCorrupt, err)
		}
		if err := fn(hdr, tr); err != nil {
			return err
		}
		if _, err := io.Copy(io.Discard, tr); err != nil {
			return memberError(hdr.Name, err)
		}
	}
}

// checkTarMember validates a header's name and, for links, its target.
func checkTarMember(w *archive.Writer, hdr *tar.Header) error {
	path, err := w.Resolve(hdr.Name)
	if err != nil {
		return err
	}
	switch hdr.Typeflag {
	case tar.TypeSymlink:
		if filepath.IsAbs(hdr.Linkname) ||
			!archive.Within(w.Root(), filepath.Join(filepath.Dir(path), hdr.Linkname)) {
			return fmt.Errorf("%w: link %q -> %q", archive.ErrPathTraversal, hdr.Name, hdr.Linkname)
		}
	case tar.TypeLink:
		if _, err := w.Resolve(hdr.Linkname); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tar) extractMember(w *archive.Writer, hdr *tar.Header, body io.Reader) error {
	switch hdr.Typeflag {
	case tar.TypeDir:
		return w.Dir(hdr.Name)
	case tar.TypeReg:
		if _, err := w.File(hdr.Name, hdr.FileInfo().Mode(), body); err != nil {
			return memberError(hdr.Name, err)
		}
		return nil
	case tar.TypeSymlink:
		return w.Symlink(hdr.Name, hdr.Linkname)
	case tar.TypeXGlobalHeader:
		return nil
	default:
		if err := checkTarMember(w, hdr); err != nil {
			return err
		}
		t.Logger().Debug("skipping special member", "member", hdr.Name, "type", string(hdr.Typeflag))
		return nil
	}
}
