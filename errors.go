package arscparser

import "errors"

// Errors the decode and lookup paths report. Callers that need to tell the
// classes apart should use errors.Is, the wrapped messages carry offsets and
// identifiers for logging.
var (
	// Structurally invalid data: bad chunk headers, misaligned sizes,
	// out of bounds offsets.
	ErrBadType = errors.New("bad type")

	// A size or count field that cannot be satisfied.
	ErrNoMemory = errors.New("out of memory")

	// An index that is out of range for the structure it refers to,
	// or a reference chain that is invalid or cyclic.
	ErrBadIndex = errors.New("bad index")

	// Name lookups that matched nothing.
	ErrNameNotFound = errors.New("name not found")

	ErrUnknown = errors.New("unknown error")
)

// Some samples have manifest in plaintext, this is an error.
// 2c882a2376034ed401be082a42a21f0ac837689e7d3ab6be0afb82f44ca0b859
var ErrPlainTextManifest = errors.New("xml is in plaintext, binary form expected")
