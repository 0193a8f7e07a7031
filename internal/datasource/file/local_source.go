// Package file implements a local filesystem-backed data source.
//
// Besides plain files it transparently decompresses gzip, zstd and xz inputs,
// detected from their magic bytes, and counts the raw bytes consumed from
// disk so progress can be reported against the file size.
package file

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// Compression names a detected container format.
type Compression string

const (
	None Compression = ""
	Gzip Compression = "gzip"
	Zstd Compression = "zstd"
	XZ   Compression = "xz"
)

var (
	magicGzip = []byte{0x1f, 0x8b}
	magicZstd = []byte{0x28, 0xb5, 0x2f, 0xfd}
	magicXZ   = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}
)

// Local is a filesystem data source that opens files from the local disk.
type Local struct{ path string }

// NewLocal returns a new Local data source bound to the provided filesystem
// path. The returned value is safe for concurrent use by multiple goroutines.
func NewLocal(path string) *Local { return &Local{path: path} }

// Path returns the configured path.
func (l *Local) Path() string { return l.path }

// OpenStream opens the path for a single sequential pass.
//
// Behavior:
//   - If the context is already canceled, OpenStream returns the context
//     error without touching the filesystem.
//   - Filesystem errors are wrapped with the path while still permitting
//     errors.Is checks (e.g. errors.Is(err, os.ErrNotExist)).
//   - Compressed inputs are unwrapped based on their leading magic bytes.
func (l *Local) OpenStream(ctx context.Context) (*Stream, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", l.path, err)
	}
	adviseSequential(f)

	s := &Stream{size: -1, closers: []io.Closer{f}}
	if st, err := f.Stat(); err == nil && st.Mode().IsRegular() {
		s.size = st.Size()
	}
	s.counter = &countingReader{r: f}

	br := bufio.NewReaderSize(s.counter, 64<<10)
	head, _ := br.Peek(len(magicXZ))

	switch {
	case bytes.HasPrefix(head, magicGzip):
		zr, err := gzip.NewReader(br)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("open %s: gzip: %w", l.path, err)
		}
		s.Reader, s.compression = zr, Gzip
		s.closers = append([]io.Closer{zr}, s.closers...)
	case bytes.HasPrefix(head, magicZstd):
		zr, err := zstd.NewReader(br)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("open %s: zstd: %w", l.path, err)
		}
		rc := zr.IOReadCloser()
		s.Reader, s.compression = rc, Zstd
		s.closers = append([]io.Closer{rc}, s.closers...)
	case bytes.HasPrefix(head, magicXZ):
		xr, err := xz.NewReader(br)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("open %s: xz: %w", l.path, err)
		}
		s.Reader, s.compression = xr, XZ
	default:
		s.Reader = br
	}
	return s, nil
}

// Stream is an opened, possibly decompressed, input.
type Stream struct {
	io.Reader

	counter     *countingReader
	closers     []io.Closer
	size        int64
	compression Compression
}

// BytesRead returns the number of raw (on-disk) bytes consumed so far. It is
// safe to call from another goroutine.
func (s *Stream) BytesRead() int64 { return s.counter.n.Load() }

// Size returns the on-disk size, or -1 when unknown (pipes, devices).
func (s *Stream) Size() int64 { return s.size }

// Compression reports the detected container format.
func (s *Stream) Compression() Compression { return s.compression }

// Close releases decompressors and the file handle.
func (s *Stream) Close() error {
	var first error
	for _, c := range s.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

type countingReader struct {
	r io.Reader
	n atomic.Int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n.Add(int64(n))
	return n, err
}
