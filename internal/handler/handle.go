package handler

import (
	"io"
	"os"
	"sync"

	"github.com/routefs/routefs/pkg/errors"
	"github.com/routefs/routefs/pkg/types"
)

// State is the lifecycle position of a Handle
type State int

const (
	StateOpening State = iota
	StateOpen
	StateClosed
)

// String returns a readable name for the state
func (s State) String() string {
	switch s {
	case StateOpening:
		return "opening"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Handle is one open session on a matched path. It owns the stream returned
// by the bundle's callback until Release.
type Handle struct {
	mu sync.Mutex

	bundle *Bundle
	path   string
	params types.Params
	flags  int
	codec  *Codec
	stream types.Stream
	state  State
}

// Open starts a session on path. Append mode is always refused. Read-only
// opens use the read callback; write-only and read-write opens use the write
// callback.
func Open(bundle *Bundle, path string, params types.Params, flags int) (*Handle, error) {
	if flags&os.O_APPEND != 0 {
		return nil, errors.NewError(errors.ErrCodePermissionDenied, "append mode is not supported").
			WithComponent("handler").
			WithOperation("open").
			WithContext("path", path)
	}

	h := &Handle{
		bundle: bundle,
		path:   path,
		params: params,
		flags:  flags,
		state:  StateOpening,
	}

	read, write, codec := bundle.callbacks()
	h.codec = codec

	var (
		stream types.Stream
		err    error
		op     string
	)
	if IsWriteMode(flags) {
		op = "write"
		if write == nil {
			return nil, notSupported(op, path)
		}
		stream, err = write(path, params)
	} else {
		op = "read"
		if read == nil {
			return nil, notSupported(op, path)
		}
		stream, err = read(path, params)
	}

	if err != nil {
		if stream != nil {
			_ = stream.Close()
		}
		return nil, CallbackError(err, op, path)
	}
	if stream == nil {
		return nil, errors.NewError(errors.ErrCodeHandlerFailure, op+" callback returned no stream").
			WithComponent("handler").
			WithOperation("open").
			WithContext("path", path)
	}

	h.stream = stream
	h.state = StateOpen
	return h, nil
}

// IsWriteMode reports whether the access mode in flags asks for writing
func IsWriteMode(flags int) bool {
	mode := flags & (os.O_RDONLY | os.O_WRONLY | os.O_RDWR)
	return mode == os.O_WRONLY || mode == os.O_RDWR
}

// Path returns the concrete path the handle was opened on
func (h *Handle) Path() string {
	return h.path
}

// Params returns the parameters captured for the path
func (h *Handle) Params() types.Params {
	return h.params
}

// Flags returns the open flags
func (h *Handle) Flags() int {
	return h.flags
}

// Bundle returns the bundle serving the handle
func (h *Handle) Bundle() *Bundle {
	return h.bundle
}

// State returns the current lifecycle state
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Read returns up to length units starting at offset. Units are bytes for
// binary handles and characters for encoded ones. Reading past the end
// returns an empty slice and no error.
func (h *Handle) Read(length int, offset int64) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.checkOpen("read"); err != nil {
		return nil, err
	}
	if length <= 0 || offset < 0 {
		return []byte{}, nil
	}

	if h.codec != nil {
		return h.readEncoded(length, offset)
	}

	if _, err := h.stream.Seek(offset, io.SeekStart); err != nil {
		return nil, h.ioError(err, "read")
	}
	buf := make([]byte, length)
	n, err := io.ReadFull(h.stream, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, h.ioError(err, "read")
	}
	return buf[:n], nil
}

func (h *Handle) readEncoded(length int, offset int64) ([]byte, error) {
	if _, err := h.stream.Seek(0, io.SeekStart); err != nil {
		return nil, h.ioError(err, "read")
	}
	raw, err := io.ReadAll(h.stream)
	if err != nil {
		return nil, h.ioError(err, "read")
	}
	text, err := h.codec.Decode(raw)
	if err != nil {
		return nil, err
	}

	chars := []rune(text)
	start := offset
	if start > int64(len(chars)) {
		start = int64(len(chars))
	}
	end := start + int64(length)
	if end > int64(len(chars)) {
		end = int64(len(chars))
	}
	return h.codec.Encode(string(chars[start:end]))
}

// Write stores data at offset and returns the number of bytes accepted
func (h *Handle) Write(data []byte, offset int64) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.checkOpen("write"); err != nil {
		return 0, err
	}
	if offset < 0 {
		return 0, errors.NewError(errors.ErrCodePathInvalid, "negative write offset").
			WithComponent("handler").
			WithOperation("write")
	}

	payload := data
	if h.codec != nil {
		text, err := h.codec.Decode(data)
		if err != nil {
			return 0, err
		}
		if payload, err = h.codec.Encode(text); err != nil {
			return 0, err
		}
	}

	if _, err := h.stream.Seek(offset, io.SeekStart); err != nil {
		return 0, h.ioError(err, "write")
	}
	n, err := h.stream.Write(payload)
	if err != nil {
		return n, h.ioError(err, "write")
	}
	if h.codec != nil {
		return len(data), nil
	}
	return n, nil
}

// Flush persists pending writes when the stream is a types.Flusher and
// does nothing otherwise
func (h *Handle) Flush() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.checkOpen("flush"); err != nil {
		return err
	}
	if f, ok := h.stream.(types.Flusher); ok {
		if err := f.Flush(); err != nil {
			return CallbackError(err, "flush", h.path)
		}
	}
	return nil
}

// Release closes the stream and moves the handle to Closed. The handle is
// closed even when the stream's Close fails; that failure is returned.
// Calling Release again is a no-op.
func (h *Handle) Release() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state == StateClosed {
		return nil
	}
	stream := h.stream
	h.stream = nil
	h.state = StateClosed

	if stream == nil {
		return nil
	}
	if err := stream.Close(); err != nil {
		return CallbackError(err, "release", h.path)
	}
	return nil
}

func (h *Handle) checkOpen(operation string) error {
	if h.state == StateOpen {
		return nil
	}
	return errors.Newf(errors.ErrCodeInvalidHandle, "handle for %s is %s", h.path, h.state).
		WithComponent("handler").
		WithOperation(operation)
}

func (h *Handle) ioError(err error, operation string) error {
	return CallbackError(err, operation, h.path)
}

func notSupported(operation, path string) error {
	return errors.NewError(errors.ErrCodeNotSupported, "no "+operation+" handler for "+path).
		WithComponent("handler").
		WithOperation("open").
		WithContext("path", path)
}
