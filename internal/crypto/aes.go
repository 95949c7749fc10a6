package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha1"
	"fmt"
	"hash"
	"io"

	"golang.org/x/crypto/pbkdf2"

	"github.com/blurfx/unnest/internal/archive"
)

// WinZip AES member layout: salt, 2-byte password verifier, data, 10-byte
// HMAC-SHA1 authentication code.
const (
	aesVerifierLen = 2
	aesMACLen      = 10
	aesIterations  = 1000
)

// AESDecryptor implements WinZip AES-CTR decryption with HMAC-SHA1
// authentication over the ciphertext.
type AESDecryptor struct {
	block       cipher.Block
	counter     [aes.BlockSize]byte
	keystream   [aes.BlockSize]byte
	ksPos       int
	mac         hash.Hash
	expectedMAC []byte
}

// aesParams returns key and salt sizes for the WinZip strength byte.
func aesParams(strength byte) (keyLen, saltLen int) {
	switch strength {
	case 1: // AES-128
		return 16, 8
	case 2: // AES-192
		return 24, 12
	case 3: // AES-256
		return 32, 16
	default:
		return 0, 0
	}
}

// AESSaltLen returns the salt size for strength, or 0 when unsupported.
func AESSaltLen(strength byte) int {
	_, saltLen := aesParams(strength)
	return saltLen
}

func newAESCipher(strength byte, password string, salt []byte) (*AESDecryptor, []byte, error) {
	keyLen, saltLen := aesParams(strength)
	if keyLen == 0 {
		return nil, nil, fmt.Errorf("%w: aes strength %d", archive.ErrUnsupportedEncryption, strength)
	}
	if len(salt) != saltLen {
		return nil, nil, fmt.Errorf("aes: salt length %d, want %d", len(salt), saltLen)
	}

	derived := pbkdf2.Key([]byte(password), salt, aesIterations, 2*keyLen+aesVerifierLen, sha1.New)
	block, err := aes.NewCipher(derived[:keyLen])
	if err != nil {
		return nil, nil, err
	}
	a := &AESDecryptor{
		block: block,
		ksPos: aes.BlockSize,
		mac:   hmac.New(sha1.New, derived[keyLen:2*keyLen]),
	}
	return a, derived[2*keyLen:], nil
}

// NewAESDecryptor derives the member keys and checks the password verifier.
func NewAESDecryptor(strength byte, password string, salt, verifier []byte) (*AESDecryptor, error) {
	a, want, err := newAESCipher(strength, password, salt)
	if err != nil {
		return nil, err
	}
	if !hmac.Equal(want, verifier) {
		return nil, archive.ErrWrongPassword
	}
	return a, nil
}

// xorKeyStream applies AES-CTR with a little-endian counter starting at 1.
func (a *AESDecryptor) xorKeyStream(buf []byte) {
	for i := range buf {
		if a.ksPos == len(a.keystream) {
			for j := range a.counter {
				a.counter[j]++
				if a.counter[j] != 0 {
					break
				}
			}
			a.block.Encrypt(a.keystream[:], a.counter[:])
			a.ksPos = 0
		}
		buf[i] ^= a.keystream[a.ksPos]
		a.ksPos++
	}
}

// Decrypt decrypts the buffer in place.
func (a *AESDecryptor) Decrypt(buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	_, _ = a.mac.Write(buf)
	a.xorKeyStream(buf)
	return nil
}

// Finish verifies the authentication code when one has been supplied.
func (a *AESDecryptor) Finish() error {
	if len(a.expectedMAC) == 0 {
		return nil
	}
	sum := a.mac.Sum(nil)
	if !hmac.Equal(a.expectedMAC, sum[:len(a.expectedMAC)]) {
		return archive.ErrAuthenticationFailed
	}
	return nil
}

// trailerMAC reads the authentication code that follows the ciphertext
// before verifying it.
type trailerMAC struct {
	*AESDecryptor
	src io.Reader
}

func (t trailerMAC) Finish() error {
	mac := make([]byte, aesMACLen)
	if _, err := io.ReadFull(t.src, mac); err != nil {
		return fmt.Errorf("%w: missing authentication code", archive.ErrCorrupt)
	}
	t.expectedMAC = mac
	return t.AESDecryptor.Finish()
}

// NewWinZipAESReader returns a reader of the decrypted data of a WinZip AES
// member whose raw (stored) size is size. The authentication code is
// checked when the data is exhausted.
func NewWinZipAESReader(raw io.Reader, size int64, strength byte, password string) (io.Reader, error) {
	saltLen := AESSaltLen(strength)
	if saltLen == 0 {
		return nil, fmt.Errorf("%w: aes strength %d", archive.ErrUnsupportedEncryption, strength)
	}
	overhead := int64(saltLen + aesVerifierLen + aesMACLen)
	if size < overhead {
		return nil, fmt.Errorf("%w: aes member shorter than its header", archive.ErrCorrupt)
	}

	head := make([]byte, saltLen+aesVerifierLen)
	if _, err := io.ReadFull(raw, head); err != nil {
		return nil, fmt.Errorf("%w: read aes header: %v", archive.ErrCorrupt, err)
	}
	dec, err := NewAESDecryptor(strength, password, head[:saltLen], head[saltLen:])
	if err != nil {
		return nil, err
	}
	return &DecryptReader{
		R:   io.LimitReader(raw, size-overhead),
		Dec: trailerMAC{AESDecryptor: dec, src: raw},
	}, nil
}

// SealWinZipAES encrypts plain into the WinZip AES member layout for
// building test archives.
func SealWinZipAES(password string, strength byte, salt, plain []byte) ([]byte, error) {
	a, verifier, err := newAESCipher(strength, password, salt)
	if err != nil {
		return nil, err
	}
	ct := append([]byte(nil), plain...)
	a.xorKeyStream(ct)
	_, _ = a.mac.Write(ct)

	out := make([]byte, 0, len(salt)+len(verifier)+len(ct)+aesMACLen)
	out = append(out, salt...)
	out = append(out, verifier...)
	out = append(out, ct...)
	return append(out, a.mac.Sum(nil)[:aesMACLen]...), nil
}
