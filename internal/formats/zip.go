package formats

import (
	"archive/zip"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"io/fs"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zstd"
	"github.com/mholt/archives"
	"github.com/ulikunitz/xz"
	"golang.org/x/text/encoding"

	"github.com/blurfx/unnest/internal/archive"
	"github.com/blurfx/unnest/internal/crypto"
)

// Zip compression and encryption identifiers beyond store and deflate.
const (
	zipMethodBzip2 uint16 = 12
	zipMethodZstd  uint16 = zstd.ZipMethodWinZip
	zipMethodXZ    uint16 = 95
	zipMethodAES   uint16 = 99

	zipFlagEncrypted  = 0x1
	zipFlagDescriptor = 0x8

	aesExtraID = 0x9901
)

var zipDecompressors = map[uint16]zip.Decompressor{
	zip.Store:      io.NopCloser,
	zip.Deflate:    flate.NewReader,
	zipMethodBzip2: bzip2Reader,
	zipMethodZstd:  zstd.ZipDecompressor(),
	zipMethodXZ:    xzReader,
}

func bzip2Reader(r io.Reader) io.ReadCloser {
	rc, err := archives.Bz2{}.OpenReader(r)
	if err != nil {
		return errReadCloser{err}
	}
	return rc
}

func xzReader(r io.Reader) io.ReadCloser {
	xr, err := xz.NewReader(r)
	if err != nil {
		return errReadCloser{err}
	}
	return io.NopCloser(xr)
}

type errReadCloser struct{ err error }

func (e errReadCloser) Read([]byte) (int, error) { return 0, e.err }
func (e errReadCloser) Close() error             { return nil }

// Zip extracts .zip archives.
type Zip struct {
	*archive.Base
	names encoding.Encoding
}

// NewZip returns a zip extractor. It fails when the configured name
// encoding is unknown.
func NewZip(opts archive.ExtractOptions) (*Zip, error) {
	base := archive.NewBase("zip", []string{".zip"}, opts)
	enc, err := archive.LookupEncoding(base.Options().NameEncoding)
	if err != nil {
		return nil, err
	}
	return &Zip{Base: base, names: enc}, nil
}

// Extract implements archive.Extractor.
func (z *Zip) Extract(ctx context.Context, archivePath, targetDir string) error {
	return z.Run(ctx, archivePath, targetDir, z.extract)
}

func (z *Zip) extract(ctx context.Context, src, dst string) error {
	zr, err := zip.OpenReader(src)
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return fmt.Errorf("%w: %v", archive.ErrCorrupt, err)
	}
	defer zr.Close()
	for method, dcomp := range zipDecompressors {
		zr.RegisterDecompressor(method, dcomp)
	}

	opts := z.Options()
	w := z.NewWriter(dst)

	if opts.Strict {
		for _, f := range zr.File {
			if err := archive.CheckMember(w.Root(), z.memberName(f)); err != nil {
				return err
			}
		}
	}
	if opts.Verify {
		if err := z.verify(ctx, zr.File); err != nil {
			return err
		}
	}

	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := z.extractMember(w, f)
		if skipUnsafe(opts, err) {
			z.Logger().Warn("skipping unsafe member", "archive", src, "member", f.Name, "err", err)
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// verify decodes every member and checks its CRC before anything is
// written.
func (z *Zip) verify(ctx context.Context, files []*zip.File) error {
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if f.FileInfo().IsDir() {
			continue
		}
		rc, err := z.openMember(f)
		if err != nil {
			return memberError(f.Name, err)
		}
		_, err = io.Copy(io.Discard, rc)
		rc.Close()
		if err != nil {
			return memberError(f.Name, err)
		}
	}
	return nil
}

func (z *Zip) memberName(f *zip.File) string {
	if f.NonUTF8 {
		return archive.DecodeName(f.Name, z.names)
	}
	return f.Name
}

func (z *Zip) extractMember(w *archive.Writer, f *zip.File) error {
	name := z.memberName(f)
	info := f.FileInfo()

	if info.IsDir() || strings.HasSuffix(name, "/") {
		return w.Dir(name)
	}

	rc, err := z.openMember(f)
	if err != nil {
		return memberError(name, err)
	}
	defer rc.Close()

	if info.Mode()&fs.ModeSymlink != 0 {
		target, err := io.ReadAll(io.LimitReader(rc, 4096))
		if err != nil {
			return memberError(name, err)
		}
		return w.Symlink(name, string(target))
	}

	if _, err := w.File(name, info.Mode(), rc); err != nil {
		return memberError(name, err)
	}
	return nil
}

// openMember returns a reader of the member's plain data. Unencrypted
// members go through archive/zip, which checks the CRC itself; encrypted
// members are decrypted from the raw stream and checked here.
func (z *Zip) openMember(f *zip.File) (io.ReadCloser, error) {
	if f.Flags&zipFlagEncrypted == 0 {
		rc, err := f.Open()
		if errors.Is(err, zip.ErrAlgorithm) {
			return nil, fmt.Errorf("%w: method %d", archive.ErrUnsupportedMethod, f.Method)
		}
		return rc, err
	}

	password := z.Options().Password
	if password == "" {
		return nil, archive.ErrPasswordRequired
	}
	raw, err := f.OpenRaw()
	if err != nil {
		return nil, err
	}

	method := f.Method
	checkCRC := true
	var plain io.Reader
	if method == zipMethodAES {
		ae, err := parseAESExtra(f.Extra)
		if err != nil {
			return nil, err
		}
		plain, err = crypto.NewWinZipAESReader(raw, int64(f.CompressedSize64), ae.strength, password)
		if err != nil {
			return nil, err
		}
		method = ae.method
		checkCRC = ae.version == 1
	} else {
		check := byte(f.CRC32 >> 24)
		if f.Flags&zipFlagDescriptor != 0 {
			check = byte(f.ModifiedTime >> 8)
		}
		plain, err = crypto.NewZipCryptoReader(raw, password, check)
		if err != nil {
			return nil, err
		}
	}

	dcomp, ok := zipDecompressors[method]
	if !ok {
		return nil, fmt.Errorf("%w: method %d", archive.ErrUnsupportedMethod, method)
	}
	rc := dcomp(plain)
	if !checkCRC {
		return rc, nil
	}
	return &crcReader{rc: rc, hash: crc32.NewIEEE(), want: f.CRC32, size: f.UncompressedSize64}, nil
}

// crcReader checks size and CRC-32 of a member once it is fully read.
type crcReader struct {
	rc   io.ReadCloser
	hash hash.Hash32
	want uint32
	size uint64
	n    uint64
}

func (c *crcReader) Read(p []byte) (int, error) {
	n, err := c.rc.Read(p)
	c.hash.Write(p[:n])
	c.n += uint64(n)
	if errors.Is(err, io.EOF) {
		if c.n != c.size {
			return n, fmt.Errorf("%w: size %d, want %d", archive.ErrCorrupt, c.n, c.size)
		}
		if c.hash.Sum32() != c.want {
			return n, fmt.Errorf("%w: checksum mismatch", archive.ErrCorrupt)
		}
	}
	return n, err
}

func (c *crcReader) Close() error { return c.rc.Close() }

type aesExtra struct {
	version  uint16
	strength byte
	method   uint16
}

// parseAESExtra reads the WinZip AES extra field: vendor version, "AE",
// strength and the real compression method.
func parseAESExtra(extra []byte) (aesExtra, error) {
	for len(extra) >= 4 {
		id := binary.LittleEndian.Uint16(extra[0:])
		size := int(binary.LittleEndian.Uint16(extra[2:]))
		extra = extra[4:]
		if size > len(extra) {
			break
		}
		if id == aesExtraID && size >= 7 {
			return aesExtra{
				version:  binary.LittleEndian.Uint16(extra[0:]),
				strength: extra[4],
				method:   binary.LittleEndian.Uint16(extra[5:]),
			}, nil
		}
		extra = extra[size:]
	}
	return aesExtra{}, fmt.Errorf("%w: missing aes extra field", archive.ErrUnsupportedEncryption)
}
