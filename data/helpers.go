package data

import (
	"time"

	"github.com/google/uuid"
)

// NewFileRecord creates a record for a regular file.
func NewFileRecord(uri string, size uint64, modified time.Time, owner string) *Record {
	return &Record{
		URI:          uri,
		Size:         size,
		LastModified: modified,
		Owner:        owner,
		Mode:         ModeRegular | ModePerm,
	}
}

// NewDirectoryRecord creates a record for a directory.
// Directories carry no size and are stamped with the creation time.
func NewDirectoryRecord(uri string, now time.Time, owner string) *Record {
	return &Record{
		URI:          uri,
		LastModified: now,
		IsDirectory:  true,
		Owner:        owner,
		Mode:         ModeDir | ModePerm,
	}
}

// NewID returns a time-ordered unique identifier.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}
