package archivetest

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zstd"
	"github.com/mholt/archives"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"

	"github.com/blurfx/unnest/internal/crypto"
)

// Zip compression methods beyond the two archive/zip defines.
const (
	MethodBzip2 uint16 = 12
	MethodZstd  uint16 = zstd.ZipMethodWinZip
	MethodXZ    uint16 = 95
	MethodAES   uint16 = 99
)

// ZipEntry describes one member of a zip fixture.
type ZipEntry struct {
	Name   string
	Body   []byte
	Method uint16 // zip.Store, zip.Deflate, MethodBzip2, MethodZstd, MethodXZ

	// Password encrypts the member (stored) with ZipCrypto, or with WinZip
	// AES when AESStrength is 1, 2 or 3.
	Password    string
	AESStrength byte
	AEVersion   uint16 // 1 or 2; defaults to 2

	// NonUTF8 stores Name verbatim without the UTF-8 flag.
	NonUTF8 bool
}

// File is a shorthand for a deflated entry.
func File(name, body string) ZipEntry {
	return ZipEntry{Name: name, Body: []byte(body), Method: zip.Deflate}
}

// WriteZip writes a zip archive at path and returns path.
func WriteZip(t testing.TB, path string, entries ...ZipEntry) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, flate.DefaultCompression)
	})
	zw.RegisterCompressor(MethodZstd, zstd.ZipCompressor())
	zw.RegisterCompressor(MethodBzip2, func(w io.Writer) (io.WriteCloser, error) {
		return archives.Bz2{}.OpenWriter(w)
	})
	zw.RegisterCompressor(MethodXZ, func(w io.Writer) (io.WriteCloser, error) {
		return &lazyXZ{w: w}, nil
	})

	for _, e := range entries {
		switch {
		case e.Password != "" && e.AESStrength != 0:
			writeAESEntry(t, zw, e)
		case e.Password != "":
			writeZipCryptoEntry(t, zw, e)
		default:
			w, err := zw.CreateHeader(&zip.FileHeader{Name: e.Name, Method: e.Method, NonUTF8: e.NonUTF8})
			require.NoError(t, err)
			_, err = w.Write(e.Body)
			require.NoError(t, err)
		}
	}
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func writeZipCryptoEntry(t testing.TB, zw *zip.Writer, e ZipEntry) {
	t.Helper()
	crc := crc32.ChecksumIEEE(e.Body)
	sealed := crypto.SealZipCrypto(e.Password, e.Body, byte(crc>>24))

	w, err := zw.CreateRaw(&zip.FileHeader{
		Name:               e.Name,
		Method:             zip.Store,
		Flags:              0x1,
		CRC32:              crc,
		CompressedSize64:   uint64(len(sealed)),
		UncompressedSize64: uint64(len(e.Body)),
	})
	require.NoError(t, err)
	_, err = w.Write(sealed)
	require.NoError(t, err)
}

func writeAESEntry(t testing.TB, zw *zip.Writer, e ZipEntry) {
	t.Helper()
	version := e.AEVersion
	if version == 0 {
		version = 2
	}
	salt := bytes.Repeat([]byte{0x42}, crypto.AESSaltLen(e.AESStrength))
	sealed, err := crypto.SealWinZipAES(e.Password, e.AESStrength, salt, e.Body)
	require.NoError(t, err)

	extra := make([]byte, 11)
	binary.LittleEndian.PutUint16(extra[0:], 0x9901)
	binary.LittleEndian.PutUint16(extra[2:], 7)
	binary.LittleEndian.PutUint16(extra[4:], version)
	copy(extra[6:], "AE")
	extra[8] = e.AESStrength
	binary.LittleEndian.PutUint16(extra[9:], zip.Store)

	var crc uint32
	if version == 1 {
		crc = crc32.ChecksumIEEE(e.Body)
	}
	w, err := zw.CreateRaw(&zip.FileHeader{
		Name:               e.Name,
		Method:             MethodAES,
		Flags:              0x1,
		CRC32:              crc,
		Extra:              extra,
		CompressedSize64:   uint64(len(sealed)),
		UncompressedSize64: uint64(len(e.Body)),
	})
	require.NoError(t, err)
	_, err = w.Write(sealed)
	require.NoError(t, err)
}

// ZipBytes returns the zip archive built from entries.
func ZipBytes(t testing.TB, entries ...ZipEntry) []byte {
	t.Helper()
	path := WriteZip(t, filepath.Join(t.TempDir(), "fixture.zip"), entries...)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

// WriteFile writes raw bytes at path and returns path.
func WriteFile(t testing.TB, path string, data []byte) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

// FlipFirst inverts the first occurrence of needle in the file at path.
// Tests use it to damage member data without breaking the archive layout.
func FlipFirst(t testing.TB, path string, needle []byte) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	i := bytes.Index(data, needle)
	require.GreaterOrEqual(t, i, 0, "needle not found in %s", path)
	for j := range needle {
		data[i+j] ^= 0xff
	}
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

// lazyXZ defers the xz stream header until the first write. archive/zip
// creates the compressor before it writes the local file header, so an
// eager xz.NewWriter would put the stream header ahead of it.
type lazyXZ struct {
	w  io.Writer
	xw *xz.Writer
}

func (l *lazyXZ) open() error {
	if l.xw != nil {
		return nil
	}
	xw, err := xz.NewWriter(l.w)
	if err != nil {
		return err
	}
	l.xw = xw
	return nil
}

func (l *lazyXZ) Write(p []byte) (int, error) {
	if err := l.open(); err != nil {
		return 0, err
	}
	return l.xw.Write(p)
}

func (l *lazyXZ) Close() error {
	if err := l.open(); err != nil {
		return err
	}
	return l.xw.Close()
}
