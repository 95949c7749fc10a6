package archivetest

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"os"
	"path/filepath"
	"testing"
	"unicode/utf16"

	"github.com/stretchr/testify/require"
)

// SevenZipEntry is one member of a stored 7z fixture. Bodies must be
// non-empty. BadCRC records a wrong checksum for the member.
type SevenZipEntry struct {
	Name   string
	Body   []byte
	BadCRC bool
}

// 7z property ids used by the writer.
const (
	sz7End             = 0x00
	sz7Header          = 0x01
	sz7MainStreamsInfo = 0x04
	sz7FilesInfo       = 0x05
	sz7PackInfo        = 0x06
	sz7UnpackInfo      = 0x07
	sz7SubStreamsInfo  = 0x08
	sz7Size            = 0x09
	sz7CRC             = 0x0A
	sz7Folder          = 0x0B
	sz7CodersUnpackSz  = 0x0C
	sz7Name            = 0x11
)

// WriteSevenZip writes a 7z archive whose members use the copy coder, one
// folder per member, and returns path.
func WriteSevenZip(t testing.TB, path string, entries ...SevenZipEntry) string {
	t.Helper()
	require.NotEmpty(t, entries)

	var packed bytes.Buffer
	for _, e := range entries {
		require.NotEmpty(t, e.Body, "7z fixture member %s needs a body", e.Name)
		packed.Write(e.Body)
	}

	var h bytes.Buffer
	h.WriteByte(sz7Header)
	h.WriteByte(sz7MainStreamsInfo)

	h.WriteByte(sz7PackInfo)
	writeNumber(&h, 0)
	writeNumber(&h, uint64(len(entries)))
	h.WriteByte(sz7Size)
	for _, e := range entries {
		writeNumber(&h, uint64(len(e.Body)))
	}
	h.WriteByte(sz7End)

	h.WriteByte(sz7UnpackInfo)
	h.WriteByte(sz7Folder)
	writeNumber(&h, uint64(len(entries)))
	h.WriteByte(0) // not external
	for range entries {
		writeNumber(&h, 1) // one coder
		h.WriteByte(0x01)  // simple coder, 1-byte id
		h.WriteByte(0x00)  // copy
	}
	h.WriteByte(sz7CodersUnpackSz)
	for _, e := range entries {
		writeNumber(&h, uint64(len(e.Body)))
	}
	h.WriteByte(sz7End)

	h.WriteByte(sz7SubStreamsInfo)
	h.WriteByte(sz7CRC)
	h.WriteByte(1) // all defined
	for _, e := range entries {
		crc := crc32.ChecksumIEEE(e.Body)
		if e.BadCRC {
			crc = ^crc
		}
		_ = binary.Write(&h, binary.LittleEndian, crc)
	}
	h.WriteByte(sz7End)
	h.WriteByte(sz7End) // streams info

	var names bytes.Buffer
	for _, e := range entries {
		for _, u := range utf16.Encode([]rune(e.Name)) {
			_ = binary.Write(&names, binary.LittleEndian, u)
		}
		names.Write([]byte{0, 0})
	}
	h.WriteByte(sz7FilesInfo)
	writeNumber(&h, uint64(len(entries)))
	h.WriteByte(sz7Name)
	writeNumber(&h, uint64(1+names.Len()))
	h.WriteByte(0) // not external
	h.Write(names.Bytes())
	h.WriteByte(sz7End) // files info
	h.WriteByte(sz7End) // header

	header := h.Bytes()
	start := make([]byte, 20)
	binary.LittleEndian.PutUint64(start[0:], uint64(packed.Len()))
	binary.LittleEndian.PutUint64(start[8:], uint64(len(header)))
	binary.LittleEndian.PutUint32(start[16:], crc32.ChecksumIEEE(header))

	var out bytes.Buffer
	out.Write([]byte{'7', 'z', 0xBC, 0xAF, 0x27, 0x1C, 0, 4})
	_ = binary.Write(&out, binary.LittleEndian, crc32.ChecksumIEEE(start))
	out.Write(start)
	out.Write(packed.Bytes())
	out.Write(header)

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, out.Bytes(), 0o644))
	return path
}

// writeNumber encodes v in the 7z variable-length integer form: leading one
// bits in the first byte count the little-endian bytes that follow.
func writeNumber(buf *bytes.Buffer, v uint64) {
	first := byte(0)
	mask := byte(0x80)
	i := 0
	for ; i < 8; i++ {
		if v < uint64(1)<<(7*(i+1)) {
			first |= byte(v >> (8 * i))
			break
		}
		first |= mask
		mask >>= 1
	}
	buf.WriteByte(first)
	for j := 0; j < i; j++ {
		buf.WriteByte(byte(v >> (8 * j)))
	}
}
