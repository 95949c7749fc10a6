package formats

import (
	"context"
	"fmt"
	"hash/crc32"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/bodgit/sevenzip"
	"github.com/mholt/archives"

	"github.com/blurfx/unnest/internal/archive"
)

// SevenZip extracts .7z archives.
type SevenZip struct {
	*archive.Base
}

// NewSevenZip returns a 7z extractor.
func NewSevenZip(opts archive.ExtractOptions) *SevenZip {
	return &SevenZip{Base: archive.NewBase("7z", []string{".7z"}, opts)}
}

// Extract implements archive.Extractor.
func (z *SevenZip) Extract(ctx context.Context, archivePath, targetDir string) error {
	return z.Run(ctx, archivePath, targetDir, z.extract)
}

func (z *SevenZip) extract(ctx context.Context, src, dst string) error {
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("%w: %v", archive.ErrIO, err)
	}
	defer f.Close()

	opts := z.Options()
	format := archives.SevenZip{Password: opts.Password}
	w := z.NewWriter(dst)

	if opts.Verify || opts.Strict {
		if err := z.walk(ctx, format, f, func(_ context.Context, fi archives.FileInfo) error {
			return z.testMember(w, fi)
		}); err != nil {
			return err
		}
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("%w: %v", archive.ErrIO, err)
		}
	}

	return z.walk(ctx, format, f, func(_ context.Context, fi archives.FileInfo) error {
		err := z.extractMember(w, fi)
		if skipUnsafe(opts, err) {
			z.Logger().Warn("skipping unsafe member", "archive", src, "member", fi.NameInArchive, "err", err)
			return nil
		}
		return err
	})
}

// walk runs handle over every member. Errors opening the archive itself are
// reported as ErrCorrupt; handler errors keep their class.
func (z *SevenZip) walk(ctx context.Context, format archives.SevenZip, f *os.File, handle archives.FileHandler) error {
	var handlerErr error
	err := format.Extract(ctx, f, func(ctx context.Context, fi archives.FileInfo) error {
		if err := handle(ctx, fi); err != nil {
			handlerErr = err
			return err
		}
		return nil
	})
	switch {
	case handlerErr != nil:
		return handlerErr
	case err != nil && ctx.Err() != nil:
		return ctx.Err()
	case err != nil:
		return fmt.Errorf("%w: %v", archive.ErrCorrupt, err)
	}
	return nil
}

func memberPath(fi archives.FileInfo) string {
	return strings.ReplaceAll(fi.NameInArchive, "\\", "/")
}

// testMember decodes one member and compares its CRC-32 with the header.
// The decoder does not check member checksums on its own.
func (z *SevenZip) testMember(w *archive.Writer, fi archives.FileInfo) error {
	name := memberPath(fi)
	if err := archive.CheckMember(w.Root(), name); err != nil {
		if z.Options().Strict {
			return err
		}
		return nil
	}
	if fi.IsDir() || !z.Options().Verify {
		return nil
	}

	rc, err := fi.Open()
	if err != nil {
		return memberError(name, err)
	}
	defer rc.Close()

	sum := crc32.NewIEEE()
	if _, err := io.Copy(sum, rc); err != nil {
		return memberError(name, err)
	}
	if want, ok := headerCRC(fi.Header); ok && want != sum.Sum32() {
		return fmt.Errorf("%w: %s: checksum mismatch", archive.ErrCorrupt, name)
	}
	return nil
}

func headerCRC(h any) (uint32, bool) {
	switch fh := h.(type) {
	case sevenzip.FileHeader:
		return fh.CRC32, fh.CRC32 != 0
	case *sevenzip.FileHeader:
		if fh != nil {
			return fh.CRC32, fh.CRC32 != 0
		}
	}
	return 0, false
}

func (z *SevenZip) extractMember(w *archive.Writer, fi archives.FileInfo) error {
	name := memberPath(fi)
	switch {
	case fi.IsDir():
		return w.Dir(name)
	case fi.Mode()&fs.ModeSymlink != 0:
		if fi.LinkTarget == "" {
			z.Logger().Debug("skipping symlink without target", "member", name)
			return archive.CheckMember(w.Root(), name)
		}
		return w.Symlink(name, fi.LinkTarget)
	}

	if _, err := w.Resolve(name); err != nil {
		return err
	}
	rc, err := fi.Open()
	if err != nil {
		return memberError(name, err)
	}
	defer rc.Close()

	if _, err := w.File(name, fi.Mode(), rc); err != nil {
		return memberError(name, err)
	}
	return nil
}
