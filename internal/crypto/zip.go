package crypto

import (
	"fmt"
	"io"

	"github.com/blurfx/unnest/internal/archive"
)

// ZipCryptoHeaderLen is the size of the encryption header that precedes
// every ZipCrypto member.
const ZipCryptoHeaderLen = 12

// ZipCrypto implements the traditional PKWARE ZipCrypto algorithm.
// This is the shared implementation used for both encryption and decryption.
type ZipCrypto struct {
	keys [3]uint32
}

// NewZipCrypto creates a new ZipCrypto instance initialized with the given password.
func NewZipCrypto(password string) *ZipCrypto {
	z := &ZipCrypto{}
	z.Reset(password)
	return z
}

// Reset reinitializes the cipher with the given password.
func (z *ZipCrypto) Reset(password string) {
	z.keys = [3]uint32{0x12345678, 0x23456789, 0x34567890}
	for i := 0; i < len(password); i++ {
		z.UpdateKeys(password[i])
	}
}

// UpdateKeys updates the internal key state with a plaintext byte.
func (z *ZipCrypto) UpdateKeys(b byte) {
	z.keys[0] = updateCRC32(z.keys[0], b)
	z.keys[1] = (z.keys[1]+(z.keys[0]&0xff))*0x8088405 + 1
	z.keys[2] = updateCRC32(z.keys[2], byte(z.keys[1]>>24))
}

// KeystreamByte returns the next keystream byte.
func (z *ZipCrypto) KeystreamByte() byte {
	tmp := z.keys[2] | 2
	return byte((tmp * (tmp ^ 1)) >> 8)
}

// ZipDecryptor implements traditional PKWARE ZipCrypto decryption.
type ZipDecryptor struct {
	*ZipCrypto
}

// NewZipDecryptor creates a ZipCrypto decryptor and checks the password
// against the last byte of the 12-byte encryption header. check is the
// high byte of the member CRC, or of the DOS time when the member uses a
// data descriptor.
func NewZipDecryptor(password string, header []byte, check byte) (*ZipDecryptor, error) {
	if len(header) != ZipCryptoHeaderLen {
		return nil, fmt.Errorf("zipcrypto: header length %d", len(header))
	}
	z := &ZipDecryptor{ZipCrypto: NewZipCrypto(password)}

	tmp := append([]byte(nil), header...)
	if err := z.Decrypt(tmp); err != nil {
		return nil, err
	}
	if tmp[ZipCryptoHeaderLen-1] != check {
		return nil, archive.ErrWrongPassword
	}
	return z, nil
}

// Decrypt decrypts the buffer in place.
func (z *ZipDecryptor) Decrypt(buf []byte) error {
	for i := range buf {
		b := buf[i] ^ z.KeystreamByte()
		z.UpdateKeys(b)
		buf[i] = b
	}
	return nil
}

// Finish implements Decryptor. ZipCrypto has no final verification.
func (z *ZipDecryptor) Finish() error { return nil }

// NewZipCryptoReader consumes the encryption header from raw and returns a
// reader of the decrypted member data.
func NewZipCryptoReader(raw io.Reader, password string, check byte) (io.Reader, error) {
	header := make([]byte, ZipCryptoHeaderLen)
	if _, err := io.ReadFull(raw, header); err != nil {
		return nil, fmt.Errorf("zipcrypto: read header: %w", err)
	}
	dec, err := NewZipDecryptor(password, header, check)
	if err != nil {
		return nil, err
	}
	return &DecryptReader{R: raw, Dec: dec}, nil
}

// ZipEncryptor implements ZipCrypto encryption for building test archives.
type ZipEncryptor struct {
	*ZipCrypto
}

// NewZipEncryptor creates a new ZipCrypto encryptor initialized with the given password.
func NewZipEncryptor(password string) *ZipEncryptor {
	return &ZipEncryptor{ZipCrypto: NewZipCrypto(password)}
}

// EncryptBytes encrypts plaintext bytes using ZipCrypto.
func (z *ZipEncryptor) EncryptBytes(plain []byte) []byte {
	out := make([]byte, len(plain))
	for i := range plain {
		out[i] = plain[i] ^ z.KeystreamByte()
		z.UpdateKeys(plain[i])
	}
	return out
}

// SealZipCrypto returns the encryption header followed by the encrypted
// data, ready to be stored as a raw zip member.
func SealZipCrypto(password string, plain []byte, check byte) []byte {
	header := make([]byte, ZipCryptoHeaderLen)
	for i := range header[:ZipCryptoHeaderLen-1] {
		header[i] = byte(0x5a + 7*i)
	}
	header[ZipCryptoHeaderLen-1] = check

	enc := NewZipEncryptor(password)
	out := enc.EncryptBytes(header)
	return append(out, enc.EncryptBytes(plain)...)
}
