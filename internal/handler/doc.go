/*
Package handler holds the per-pattern callback bundles and the per-open
session handles that sit between the filesystem adapter and user code.

A Bundle collects the read, write, stat and link-target callbacks registered
for one path pattern, together with an optional text encoding and a file type
tag. Bundles are created on first registration and live for the rest of the
process.

A Handle is one open session on a matched path. It moves through three
states:

	Opening -> Open -> Closed

Open picks the read or write callback from the access mode, stores the stream
it returns and moves to Open. Release closes the stream no matter what and
moves to Closed. Read and Write on a handle that is not Open fail with
INVALID_HANDLE.

When the bundle carries an encoding, reads and writes address characters
rather than bytes. Every encoded read decodes the full stream content again;
nothing is cached between calls.
*/
package handler
