package cmd

import (
	"context"
	"io"

	"github.com/mwantia/s3fs/data"
	"github.com/mwantia/s3fs/mount"
	"github.com/mwantia/s3fs/reconcile"
)

// API is the part of the filesystem commands operate on.
type API interface {
	// Stat returns the metadata record of uri.
	Stat(ctx context.Context, uri string, flags data.StatFlags) (*data.Record, error)

	// ReadDir returns the records of the direct children of the directory uri.
	ReadDir(ctx context.Context, uri string) ([]*data.Record, error)

	// OpenFile opens uri with an fopen-style mode string.
	// The returned handle must be closed by the caller; closing a write
	// handle uploads its content.
	OpenFile(ctx context.Context, uri string, mode string) (*mount.Handle, error)

	// Unlink removes the file at uri.
	Unlink(ctx context.Context, uri string) error

	// Rename moves the file at from to to by copy and delete.
	Rename(ctx context.Context, from, to string) error

	// Mkdir creates the directory uri, with all missing parents when recursive is set.
	Mkdir(ctx context.Context, uri string, recursive bool) error

	// Rmdir removes the empty directory uri.
	Rmdir(ctx context.Context, uri string) error

	// Refresh rebuilds the metadata cache below prefix, or for the whole mount.
	Refresh(ctx context.Context, prefix string) (*reconcile.Result, error)

	// ExternalURL returns the download URL of uri.
	ExternalURL(ctx context.Context, uri string, secure bool) (string, error)
}

// Command represents an operator command run against the filesystem.
type Command interface {
	// Name returns the command identifier
	Name() string

	// Description returns human-readable help text
	Description() string

	// Usage returns a usage string for help (e.g. "ls -l [uri]")
	Usage() string

	// Execute runs the command with parsed arguments.
	// Output is written into writer.
	// Returns exit code (0 = success) and error message
	Execute(ctx context.Context, api API, args *CommandArgs, writer io.Writer) (int, error)

	// GetFlags returns the flag set for this command (this is optional)
	GetFlags() *CommandFlagSet
}
