// Package stream provides in-memory implementations of types.Stream.
package stream

import (
	"errors"
	"io"
	"sync"
)

var (
	// ErrClosed is returned by operations on a closed Buffer.
	ErrClosed = errors.New("stream: buffer closed")
	// ErrNegativeOffset is returned when a seek would move before the start.
	ErrNegativeOffset = errors.New("stream: negative position")
)

// Buffer is a seekable, growable byte buffer. Writes past the end pad the gap
// with zeros. An optional close hook receives the final content, which lets
// write handlers upload or persist data when the session ends. Flush runs the
// hook early; Close then runs it again only if data was written since.
type Buffer struct {
	mu      sync.Mutex
	data    []byte
	pos     int64
	closed  bool
	synced  bool
	onClose func([]byte) error
}

// NewBuffer returns a Buffer seeded with a copy of data
func NewBuffer(data []byte) *Buffer {
	return &Buffer{data: append([]byte(nil), data...)}
}

// NewBufferWithClose returns a Buffer whose Close passes the final content to onClose
func NewBufferWithClose(data []byte, onClose func([]byte) error) *Buffer {
	b := NewBuffer(data)
	b.onClose = onClose
	return b
}

// Read implements io.Reader
func (b *Buffer) Read(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, ErrClosed
	}
	if b.pos >= int64(len(b.data)) {
		return 0, io.EOF
	}
	n := copy(p, b.data[b.pos:])
	b.pos += int64(n)
	return n, nil
}

// Write implements io.Writer
func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, ErrClosed
	}
	end := b.pos + int64(len(p))
	if end > int64(len(b.data)) {
		if end > int64(cap(b.data)) {
			grown := make([]byte, end, end*2)
			copy(grown, b.data)
			b.data = grown
		} else {
			b.data = b.data[:end]
		}
	}
	copy(b.data[b.pos:end], p)
	b.pos = end
	b.synced = false
	return len(p), nil
}

// Seek implements io.Seeker
func (b *Buffer) Seek(offset int64, whence int) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, ErrClosed
	}
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = b.pos + offset
	case io.SeekEnd:
		next = int64(len(b.data)) + offset
	default:
		return 0, errors.New("stream: invalid whence")
	}
	if next < 0 {
		return 0, ErrNegativeOffset
	}
	b.pos = next
	return next, nil
}

// Flush passes the current content to the close hook unless it already has
// it. A failed hook leaves the content unsynced.
func (b *Buffer) Flush() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	return b.sync()
}

// Close implements io.Closer. Only the first call can run the close hook.
func (b *Buffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	return b.sync()
}

// sync runs the close hook. Callers hold b.mu.
func (b *Buffer) sync() error {
	if b.onClose == nil || b.synced {
		return nil
	}
	if err := b.onClose(b.data); err != nil {
		return err
	}
	b.synced = true
	return nil
}

// Bytes returns a copy of the current content
func (b *Buffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.data...)
}

// Len returns the current content length
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// Closed reports whether Close has been called
func (b *Buffer) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}
