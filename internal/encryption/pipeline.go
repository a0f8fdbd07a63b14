package encryption

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/sync/semaphore"
)

const (
	DefaultStreamThreshold = 5 << 20
	DefaultMaxConcurrent   = 8

	chunkSize = 64 << 10
)

type PipelineOptions struct {
	// StreamThreshold is the ciphertext size at and above which downloads
	// are streamed instead of decrypted in memory.
	StreamThreshold int64
	// MaxConcurrent bounds concurrent file encryptions and streaming
	// decryptions across the process.
	MaxConcurrent int64
}

// Pipeline moves bytes between plaintext and ciphertext files. The IV is
// always supplied by the caller; the pipeline never generates or stores one.
type Pipeline struct {
	codec     *Codec
	threshold int64
	sem       *semaphore.Weighted
}

func NewPipeline(codec *Codec, opts PipelineOptions) *Pipeline {
	if opts.StreamThreshold <= 0 {
		opts.StreamThreshold = DefaultStreamThreshold
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	return &Pipeline{
		codec:     codec,
		threshold: opts.StreamThreshold,
		sem:       semaphore.NewWeighted(opts.MaxConcurrent),
	}
}

// UseStreaming reports whether a blob of the given on-disk size should be
// streamed. Both paths produce identical plaintext.
func (p *Pipeline) UseStreaming(blobSize int64) bool {
	return blobSize >= p.threshold
}

// EncryptFile encrypts srcPath into a newly created dstPath. It returns only
// after dstPath is flushed and closed. On failure the partial destination
// is removed and must be treated as never produced.
func (p *Pipeline) EncryptFile(ctx context.Context, srcPath, dstPath string, iv []byte) (err error) {
	if err := checkIV(iv); err != nil {
		return err
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)

	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("open plaintext: %w", err)
	}
	defer src.Close()

	dst, err := os.OpenFile(dstPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("create ciphertext: %w", err)
	}
	defer func() {
		if err != nil {
			dst.Close()
			os.Remove(dstPath)
		}
	}()

	enc, err := p.codec.NewEncryptor(dst, iv)
	if err != nil {
		return err
	}
	if _, err = copyContext(ctx, enc, src); err != nil {
		return err
	}
	if err = enc.Close(); err != nil {
		return fmt.Errorf("finish ciphertext: %w", err)
	}
	if err = dst.Sync(); err != nil {
		return fmt.Errorf("sync ciphertext: %w", err)
	}
	if err = dst.Close(); err != nil {
		return fmt.Errorf("close ciphertext: %w", err)
	}
	return nil
}

// DecryptToBuffer reads the whole blob into memory and decrypts it in one
// pass. Meant for blobs below the stream threshold.
func (p *Pipeline) DecryptToBuffer(srcPath string, iv []byte) ([]byte, error) {
	ciphertext, err := os.ReadFile(srcPath)
	if err != nil {
		return nil, fmt.Errorf("read ciphertext: %w", err)
	}
	return p.codec.Open(ciphertext, iv)
}

// DecryptToSink streams the blob through a decryptor into sink in bounded
// chunks. It first waits for a crypto slot and opens the blob; when ready is
// non-nil it is then called with the exact plaintext length, before any
// byte reaches sink. An error returned before ready runs means sink was
// never touched.
//
// Streaming stops at the first failure of any stage, including a sink write
// error or ctx cancellation (client gone), and the source is closed. The
// number of plaintext bytes delivered to sink is returned either way.
func (p *Pipeline) DecryptToSink(ctx context.Context, srcPath string, iv []byte, sink io.Writer, ready func(plainSize int64)) (int64, error) {
	if err := checkIV(iv); err != nil {
		return 0, err
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return 0, err
	}
	defer p.sem.Release(1)

	src, err := os.Open(srcPath)
	if err != nil {
		return 0, fmt.Errorf("open ciphertext: %w", err)
	}
	defer src.Close()

	if ready != nil {
		size, err := p.plaintextSize(src, iv)
		if err != nil {
			return 0, err
		}
		ready(size)
	}

	counter := &countingWriter{w: sink}
	dec, err := p.codec.NewDecryptor(counter, iv)
	if err != nil {
		return 0, err
	}
	if _, err := copyContext(ctx, dec, src); err != nil {
		return counter.n, err
	}
	if err := dec.Close(); err != nil {
		return counter.n, err
	}
	return counter.n, nil
}

// plaintextSize returns the exact decrypted length of the blob by reading
// and decrypting only its final block. It reads with ReadAt, so the offset
// of f is left alone.
func (p *Pipeline) plaintextSize(f *os.File, iv []byte) (int64, error) {
	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat ciphertext: %w", err)
	}
	size := info.Size()
	if size < blockSize || size%blockSize != 0 {
		return 0, fmt.Errorf("%w: ciphertext length %d is not a positive multiple of %d", ErrCrypto, size, blockSize)
	}

	n := int64(2 * blockSize)
	if size < n {
		n = size
	}
	tail := make([]byte, n)
	if _, err := f.ReadAt(tail, size-n); err != nil && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("read ciphertext tail: %w", err)
	}
	return p.codec.PlaintextSize(size, tail, iv)
}

func copyContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, chunkSize)
	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		nr, rerr := src.Read(buf)
		if nr > 0 {
			nw, werr := dst.Write(buf[:nr])
			written += int64(nw)
			if werr != nil {
				return written, werr
			}
			if nw != nr {
				return written, io.ErrShortWrite
			}
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, rerr
		}
	}
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
