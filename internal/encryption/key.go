// Package encryption implements per-file AES-256-CBC encryption at rest:
// the static key material, the streaming cipher codec, and the file
// pipeline that moves bytes between plaintext and ciphertext on disk.
//
// CBC provides confidentiality only. A flipped ciphertext bit either fails
// padding validation or silently corrupts a block of plaintext; switching
// to an authenticated mode would change the on-disk format.
package encryption

import (
	"crypto/aes"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const (
	KeySize = 32
	IVSize  = aes.BlockSize
)

// ErrCrypto covers wrong key/IV lengths, corrupt or truncated ciphertext
// and failures of the underlying primitive.
var ErrCrypto = errors.New("crypto error")

// Key is the process-wide symmetric key. It is a value type so holders
// cannot mutate each other's copy.
type Key [KeySize]byte

// ParseKey decodes a 64 character hex string into a Key.
func ParseKey(s string) (Key, error) {
	var k Key
	b, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return k, fmt.Errorf("%w: key is not valid hex", ErrCrypto)
	}
	if len(b) != KeySize {
		return k, fmt.Errorf("%w: key must be %d bytes, got %d", ErrCrypto, KeySize, len(b))
	}
	copy(k[:], b)
	return k, nil
}

// NewIV returns a fresh IV from crypto/rand. Every encryption must use its
// own IV; reusing one under the same key leaks plaintext structure.
func NewIV() ([]byte, error) {
	iv := make([]byte, IVSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("%w: generate iv: %v", ErrCrypto, err)
	}
	return iv, nil
}

// ParseIV decodes the hex IV stored alongside a file record.
func ParseIV(s string) ([]byte, error) {
	iv, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: iv is not valid hex", ErrCrypto)
	}
	if len(iv) != IVSize {
		return nil, fmt.Errorf("%w: iv must be %d bytes, got %d", ErrCrypto, IVSize, len(iv))
	}
	return iv, nil
}
