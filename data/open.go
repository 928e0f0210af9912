package data

import (
	"fmt"
	"strings"
)

// OpenMode is the single access mode a handle is opened with.
type OpenMode int

const (
	OpenRead      OpenMode = iota // r: read an existing object
	OpenWrite                     // w: create or replace
	OpenAppend                    // a: replace with existing content plus appended data
	OpenExclusive                 // x: create, failing if the target exists
)

func (m OpenMode) String() string {
	switch m {
	case OpenRead:
		return "r"
	case OpenWrite:
		return "w"
	case OpenAppend:
		return "a"
	case OpenExclusive:
		return "x"
	default:
		return "?"
	}
}

// CanRead returns true if the mode allows reading.
func (m OpenMode) CanRead() bool {
	return m == OpenRead
}

// CanWrite returns true if the mode allows writing.
func (m OpenMode) CanWrite() bool {
	return m != OpenRead
}

// ParseOpenMode parses an fopen-style mode string.
// Binary and text flags are ignored. Requesting read and write
// access at once returns ErrModeConflict; anything else that is not
// one of r, w, a or x returns ErrModeUnsupported.
func ParseOpenMode(mode string) (OpenMode, error) {
	m := strings.Map(func(r rune) rune {
		if r == 'b' || r == 't' {
			return -1
		}
		return r
	}, mode)

	if strings.Contains(m, "+") {
		return 0, fmt.Errorf("%w: %q", ErrModeConflict, mode)
	}

	found := 0
	for _, c := range "rwax" {
		if strings.ContainsRune(m, c) {
			found++
		}
	}
	if found > 1 {
		return 0, fmt.Errorf("%w: %q", ErrModeConflict, mode)
	}

	switch m {
	case "r":
		return OpenRead, nil
	case "w":
		return OpenWrite, nil
	case "a":
		return OpenAppend, nil
	case "x":
		return OpenExclusive, nil
	}

	return 0, fmt.Errorf("%w: %q", ErrModeUnsupported, mode)
}
