/*
Package types provides the shared data structures and callback contracts of routefs.

Application code registers handler callbacks against path patterns; the
filesystem invokes them with the concrete path and the parameters captured by
the pattern:

	fsys.OnRead("/users/*name", func(path string, params types.Params) (types.Stream, error) {
		return stream.NewBuffer([]byte(params.Get("name"))), nil
	})

# Metadata

Attr is the metadata record surfaced through getattr. Mode carries both the
POSIX type bits (ModeDir, ModeRegular, ModeSymlink) and the permission bits.
Ownership fields set to UnsetID were not supplied by a handler.

# Streams

A read or write callback returns a Stream for the duration of one open
session. The filesystem owns the stream exclusively until the session is
released, at which point it is closed exactly once.
*/
package types
