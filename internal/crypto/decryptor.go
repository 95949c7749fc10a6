package crypto

import (
	"errors"
	"hash/crc32"
	"io"
)

// Decryptor defines the interface for stream decryption.
type Decryptor interface {
	// Decrypt decrypts the buffer in place.
	Decrypt([]byte) error

	// Finish performs final verification (e.g., MAC check).
	Finish() error
}

// NopDecryptor is a no-op decryptor for unencrypted streams.
type NopDecryptor struct{}

// Decrypt implements Decryptor.
func (NopDecryptor) Decrypt([]byte) error { return nil }

// Finish implements Decryptor.
func (NopDecryptor) Finish() error { return nil }

// DecryptReader wraps a reader with decryption. At end of stream it runs
// Dec.Finish and reports its error in place of io.EOF.
type DecryptReader struct {
	R   io.Reader
	Dec Decryptor

	finished bool
}

// Read implements io.Reader with decryption.
func (d *DecryptReader) Read(p []byte) (int, error) {
	n, err := d.R.Read(p)
	if n > 0 {
		if derr := d.Dec.Decrypt(p[:n]); derr != nil {
			return n, derr
		}
	}
	if errors.Is(err, io.EOF) && !d.finished {
		d.finished = true
		if ferr := d.Dec.Finish(); ferr != nil {
			return n, ferr
		}
	}
	return n, err
}

// updateCRC32 updates a CRC32 checksum with a single byte.
func updateCRC32(crc uint32, b byte) uint32 {
	return crc32.IEEETable[(byte(crc)^b)&0xff] ^ (crc >> 8)
}
