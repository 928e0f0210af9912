package data

import (
	"encoding/json"
	"time"
)

// Record is the cached metadata for one file or directory.
type Record struct {
	// Full URI including the scheme, e.g. "s3://media/a/b.png"
	URI string `json:"uri"`

	// Size in bytes (0 for directories)
	Size uint64 `json:"size"`

	LastModified time.Time `json:"last_modified"`
	IsDirectory  bool      `json:"is_directory"`

	// Owner reported by the store, or the configured directory owner
	Owner string `json:"owner"`

	// Synthesized POSIX mode
	Mode FileMode `json:"mode"`

	// Zero means the record never expires
	Expires time.Time `json:"expires,omitempty"`
}

// Expired reports whether the record has a TTL that lies before now.
func (r *Record) Expired(now time.Time) bool {
	return !r.Expires.IsZero() && !now.Before(r.Expires)
}

// Clone returns a copy of the record.
func (r *Record) Clone() *Record {
	c := *r
	return &c
}

// Marshal provides JSON serialization for Record.
func (r *Record) Marshal() ([]byte, error) {
	return json.Marshal(r)
}

// Unmarshal provides JSON deserialization for Record.
func (r *Record) Unmarshal(data []byte) error {
	return json.Unmarshal(data, r)
}

// StatFlags modifies how a stat lookup reports failures.
type StatFlags int

const (
	// StatQuiet reports every failure as ErrNotExist.
	StatQuiet StatFlags = 1 << iota
	// StatLink is accepted for compatibility; there are no links.
	StatLink
)
