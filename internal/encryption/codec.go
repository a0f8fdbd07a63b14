package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"
	"io"
)

const blockSize = aes.BlockSize

var errClosed = errors.New("write to closed cipher stream")

// Codec builds encrypt and decrypt transforms for a single key. It holds
// no per-operation state and is safe for concurrent use.
type Codec struct {
	block cipher.Block
}

func NewCodec(key Key) (*Codec, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCrypto, err)
	}
	return &Codec{block: block}, nil
}

func checkIV(iv []byte) error {
	if len(iv) != IVSize {
		return fmt.Errorf("%w: iv must be %d bytes, got %d", ErrCrypto, IVSize, len(iv))
	}
	return nil
}

// NewEncryptor returns a writer that encrypts everything written to it into
// dst. Close pads and flushes the final block; it does not close dst.
func (c *Codec) NewEncryptor(dst io.Writer, iv []byte) (io.WriteCloser, error) {
	if err := checkIV(iv); err != nil {
		return nil, err
	}
	return &encryptWriter{dst: dst, mode: cipher.NewCBCEncrypter(c.block, iv)}, nil
}

// NewDecryptor returns a writer that decrypts ciphertext written to it into
// dst. The last block is held back until Close so padding can be stripped.
func (c *Codec) NewDecryptor(dst io.Writer, iv []byte) (io.WriteCloser, error) {
	if err := checkIV(iv); err != nil {
		return nil, err
	}
	return &decryptWriter{dst: dst, mode: cipher.NewCBCDecrypter(c.block, iv)}, nil
}

// seal encrypts a whole buffer in one pass.
func (c *Codec) seal(plaintext, iv []byte) ([]byte, error) {
	if err := checkIV(iv); err != nil {
		return nil, err
	}
	padded := pkcs7Pad(plaintext)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(c.block, iv).CryptBlocks(out, padded)
	return out, nil
}

// Open decrypts a whole buffer in one pass.
func (c *Codec) Open(ciphertext, iv []byte) ([]byte, error) {
	if err := checkIV(iv); err != nil {
		return nil, err
	}
	if len(ciphertext) == 0 || len(ciphertext)%blockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext length %d is not a positive multiple of %d", ErrCrypto, len(ciphertext), blockSize)
	}
	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(c.block, iv).CryptBlocks(out, ciphertext)
	return pkcs7Unpad(out)
}

// PlaintextSize derives the exact plaintext length of a blob of size bytes
// from its trailing ciphertext. tail must hold the last min(size, 32)
// bytes: the final block and the block chained into it.
func (c *Codec) PlaintextSize(size int64, tail, iv []byte) (int64, error) {
	if err := checkIV(iv); err != nil {
		return 0, err
	}
	if size < blockSize || size%blockSize != 0 {
		return 0, fmt.Errorf("%w: ciphertext length %d is not a positive multiple of %d", ErrCrypto, size, blockSize)
	}
	want := 2 * blockSize
	if size == blockSize {
		want = blockSize
	}
	if len(tail) != want {
		return 0, fmt.Errorf("%w: need %d trailing bytes, got %d", ErrCrypto, want, len(tail))
	}

	chain, last := iv, tail
	if want == 2*blockSize {
		chain, last = tail[:blockSize], tail[blockSize:]
	}
	out := make([]byte, blockSize)
	cipher.NewCBCDecrypter(c.block, chain).CryptBlocks(out, last)
	unpadded, err := pkcs7Unpad(out)
	if err != nil {
		return 0, err
	}
	return size - int64(blockSize-len(unpadded)), nil
}

type encryptWriter struct {
	dst     io.Writer
	mode    cipher.BlockMode
	pending []byte
	scratch []byte
	closed  bool
	err     error
}

func (w *encryptWriter) Write(p []byte) (int, error) {
	if w.closed {
		return 0, errClosed
	}
	if w.err != nil {
		return 0, w.err
	}
	n := len(p)

	if len(w.pending) > 0 {
		need := blockSize - len(w.pending)
		if len(p) < need {
			w.pending = append(w.pending, p...)
			return n, nil
		}
		w.pending = append(w.pending, p[:need]...)
		if err := w.emit(w.pending); err != nil {
			return 0, err
		}
		w.pending = w.pending[:0]
		p = p[need:]
	}

	full := len(p) - len(p)%blockSize
	if full > 0 {
		if err := w.emit(p[:full]); err != nil {
			return 0, err
		}
	}
	w.pending = append(w.pending, p[full:]...)
	return n, nil
}

func (w *encryptWriter) emit(src []byte) error {
	if cap(w.scratch) < len(src) {
		w.scratch = make([]byte, len(src))
	}
	out := w.scratch[:len(src)]
	w.mode.CryptBlocks(out, src)
	if _, err := w.dst.Write(out); err != nil {
		w.err = err
		return err
	}
	return nil
}

func (w *encryptWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if w.err != nil {
		return w.err
	}
	return w.emit(pkcs7Pad(w.pending))
}

type decryptWriter struct {
	dst     io.Writer
	mode    cipher.BlockMode
	pending []byte
	scratch []byte
	closed  bool
	err     error
}

func (w *decryptWriter) Write(p []byte) (int, error) {
	if w.closed {
		return 0, errClosed
	}
	if w.err != nil {
		return 0, w.err
	}
	w.pending = append(w.pending, p...)
	if len(w.pending) <= blockSize {
		return len(p), nil
	}

	// Everything but the trailing (possibly final) block can be released.
	ready := (len(w.pending) - 1) / blockSize * blockSize
	if cap(w.scratch) < ready {
		w.scratch = make([]byte, ready)
	}
	out := w.scratch[:ready]
	w.mode.CryptBlocks(out, w.pending[:ready])
	if _, err := w.dst.Write(out); err != nil {
		w.err = err
		return 0, err
	}
	w.pending = append(w.pending[:0], w.pending[ready:]...)
	return len(p), nil
}

func (w *decryptWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if w.err != nil {
		return w.err
	}
	if len(w.pending) != blockSize {
		return fmt.Errorf("%w: ciphertext is truncated", ErrCrypto)
	}
	out := make([]byte, blockSize)
	w.mode.CryptBlocks(out, w.pending)
	plain, err := pkcs7Unpad(out)
	if err != nil {
		return err
	}
	if len(plain) == 0 {
		return nil
	}
	_, err = w.dst.Write(plain)
	return err
}

func pkcs7Pad(b []byte) []byte {
	n := blockSize - len(b)%blockSize
	out := make([]byte, len(b)+n)
	copy(out, b)
	for i := len(b); i < len(out); i++ {
		out[i] = byte(n)
	}
	return out
}

func pkcs7Unpad(b []byte) ([]byte, error) {
	if len(b) == 0 || len(b)%blockSize != 0 {
		return nil, fmt.Errorf("%w: invalid padded length %d", ErrCrypto, len(b))
	}
	n := int(b[len(b)-1])
	if n == 0 || n > blockSize {
		return nil, fmt.Errorf("%w: invalid padding", ErrCrypto)
	}
	for _, v := range b[len(b)-n:] {
		if int(v) != n {
			return nil, fmt.Errorf("%w: invalid padding", ErrCrypto)
		}
	}
	return b[:len(b)-n], nil
}
