// Package router resolves concrete filesystem paths against registered path patterns.
//
// A pattern is a '/'-delimited sequence of segments. Segments match literally,
// except a final segment of the form *name, which greedily captures the rest of
// the path (slashes included) under name:
//
//	/config          matches only /config
//	/users/*rest     matches /users/a and /users/a/b (rest = "a/b")
//	*file            matches every path except the root
package router

import (
	"strings"
	"sync"

	"github.com/routefs/routefs/pkg/errors"
)

// CaptureMarker prefixes a greedy capture segment.
const CaptureMarker = "*"

// Match is the result of a successful lookup.
type Match[T any] struct {
	// Pattern is the normalized pattern that matched. Empty for interior nodes.
	Pattern string
	// Data is the value registered under Pattern.
	Data T
	// Params holds the captured values by name.
	Params map[string]string
	// Leaf is false when the path is only implied by registered patterns
	// (an intermediate directory or the root) and has no data of its own.
	Leaf bool
}

type route[T any] struct {
	pattern string
	literal []string
	capture string
	data    T
}

func (r *route[T]) hasCapture() bool {
	return r.capture != ""
}

// Router maps path patterns to data. It is safe for concurrent use.
type Router[T any] struct {
	mu     sync.RWMutex
	routes []*route[T]
	index  map[string]*route[T]
}

// New creates an empty router
func New[T any]() *Router[T] {
	return &Router[T]{
		index: make(map[string]*route[T]),
	}
}

// Add registers data under pattern. Registering the same pattern again
// replaces its data but keeps its original registration position.
func (r *Router[T]) Add(pattern string, data T) error {
	rt, err := parsePattern[T](pattern)
	if err != nil {
		return err
	}
	rt.data = data

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.index[rt.pattern]; ok {
		existing.data = data
		return nil
	}
	r.routes = append(r.routes, rt)
	r.index[rt.pattern] = rt
	return nil
}

// Lookup resolves path. Exact literal routes win, then interior nodes implied
// by literal segments (including the directory a capture route lists), then
// the capture route with the longest literal prefix (earliest registration on
// ties). The root always resolves, at least as an interior node.
func (r *Router[T]) Lookup(path string) (Match[T], bool) {
	segments := Split(path)

	r.mu.RLock()
	defer r.mu.RUnlock()

	if rt, ok := r.index[Join(segments)]; ok && !rt.hasCapture() {
		return Match[T]{Pattern: rt.pattern, Data: rt.data, Params: map[string]string{}, Leaf: true}, true
	}

	if len(segments) == 0 || r.isInterior(segments) {
		return Match[T]{Params: map[string]string{}}, true
	}

	return r.captureMatch(segments)
}

// LookupLeaf resolves path to registered data only. It tries the exact
// literal route, then the best capture route, and never reports interior
// nodes.
func (r *Router[T]) LookupLeaf(path string) (Match[T], bool) {
	segments := Split(path)

	r.mu.RLock()
	defer r.mu.RUnlock()

	if rt, ok := r.index[Join(segments)]; ok && !rt.hasCapture() {
		return Match[T]{Pattern: rt.pattern, Data: rt.data, Params: map[string]string{}, Leaf: true}, true
	}
	return r.captureMatch(segments)
}

// captureMatch picks the capture route with the longest literal prefix that
// leaves at least one segment to capture. Callers hold r.mu.
func (r *Router[T]) captureMatch(segments []string) (Match[T], bool) {
	var best *route[T]
	for _, rt := range r.routes {
		if !rt.hasCapture() || len(segments) <= len(rt.literal) {
			continue
		}
		if !hasPrefix(segments, rt.literal) {
			continue
		}
		if best == nil || len(rt.literal) > len(best.literal) {
			best = rt
		}
	}
	if best == nil {
		return Match[T]{}, false
	}

	return Match[T]{
		Pattern: best.pattern,
		Data:    best.data,
		Params: map[string]string{
			best.capture: strings.Join(segments[len(best.literal):], "/"),
		},
		Leaf: true,
	}, true
}

// List returns the distinct immediate child names implied under path by the
// literal segments of registered patterns, in registration order.
func (r *Router[T]) List(path string) []string {
	segments := Split(path)

	r.mu.RLock()
	defer r.mu.RUnlock()

	var names []string
	seen := make(map[string]bool)
	for _, rt := range r.routes {
		if len(rt.literal) <= len(segments) || !hasPrefix(rt.literal, segments) {
			continue
		}
		name := rt.literal[len(segments)]
		if seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}

// Len returns the number of registered patterns
func (r *Router[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.routes)
}

// Patterns returns the normalized patterns in registration order
func (r *Router[T]) Patterns() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	patterns := make([]string, 0, len(r.routes))
	for _, rt := range r.routes {
		patterns = append(patterns, rt.pattern)
	}
	return patterns
}

// isInterior reports whether segments is a strict prefix of some route's
// literal segments, or the whole literal prefix of a capture route (whose
// capture needs at least one more segment). Callers hold r.mu.
func (r *Router[T]) isInterior(segments []string) bool {
	for _, rt := range r.routes {
		if !hasPrefix(rt.literal, segments) {
			continue
		}
		if len(rt.literal) > len(segments) || rt.hasCapture() {
			return true
		}
	}
	return false
}

func parsePattern[T any](pattern string) (*route[T], error) {
	segments := Split(pattern)
	rt := &route[T]{pattern: Join(segments)}

	for i, seg := range segments {
		if !strings.HasPrefix(seg, CaptureMarker) {
			rt.literal = append(rt.literal, seg)
			continue
		}
		if i != len(segments)-1 {
			return nil, errors.Newf(errors.ErrCodePatternInvalid,
				"capture %q must be the last segment of %q", seg, pattern).
				WithComponent("router")
		}
		name := strings.TrimPrefix(seg, CaptureMarker)
		if name == "" {
			return nil, errors.Newf(errors.ErrCodePatternInvalid,
				"capture in %q has no name", pattern).
				WithComponent("router")
		}
		rt.capture = name
	}
	return rt, nil
}

// Split breaks a path into its non-empty segments
func Split(path string) []string {
	parts := strings.Split(path, "/")
	segments := parts[:0]
	for _, part := range parts {
		if part != "" {
			segments = append(segments, part)
		}
	}
	return segments
}

// Join builds the normalized absolute form of segments
func Join(segments []string) string {
	return "/" + strings.Join(segments, "/")
}

func hasPrefix(segments, prefix []string) bool {
	if len(prefix) > len(segments) {
		return false
	}
	for i, seg := range prefix {
		if segments[i] != seg {
			return false
		}
	}
	return true
}
