package filesystem

import (
	"sync"

	"github.com/routefs/routefs/internal/handler"
	"github.com/routefs/routefs/pkg/errors"
)

// handleTable maps handle ids to open handles. Ids start at 1, only ever
// increase and are never handed out twice.
type handleTable struct {
	sync.RWMutex
	next    uint64
	handles map[uint64]*handler.Handle
}

func newHandleTable() *handleTable {
	return &handleTable{handles: make(map[uint64]*handler.Handle)}
}

// Add stores h under a fresh id
func (t *handleTable) Add(h *handler.Handle) uint64 {
	t.Lock()
	defer t.Unlock()
	t.next++
	t.handles[t.next] = h
	return t.next
}

// Get returns the handle for fh
func (t *handleTable) Get(fh uint64) (*handler.Handle, error) {
	t.RLock()
	defer t.RUnlock()
	h, ok := t.handles[fh]
	if !ok {
		return nil, errInvalidHandle(fh)
	}
	return h, nil
}

// Remove takes fh out of the table and returns the handle it held
func (t *handleTable) Remove(fh uint64) (*handler.Handle, error) {
	t.Lock()
	defer t.Unlock()
	h, ok := t.handles[fh]
	if !ok {
		return nil, errInvalidHandle(fh)
	}
	delete(t.handles, fh)
	return h, nil
}

// Len returns the number of open handles
func (t *handleTable) Len() int {
	t.RLock()
	defer t.RUnlock()
	return len(t.handles)
}

// Drain empties the table and returns what it held
func (t *handleTable) Drain() map[uint64]*handler.Handle {
	t.Lock()
	defer t.Unlock()
	drained := t.handles
	t.handles = make(map[uint64]*handler.Handle)
	return drained
}

func errInvalidHandle(fh uint64) error {
	return errors.Newf(errors.ErrCodeInvalidHandle, "handle %d is not open", fh).
		WithComponent("filesystem")
}
