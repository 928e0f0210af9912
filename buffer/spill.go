package buffer

import (
	"fmt"
	"io"
	"os"

	"github.com/mwantia/s3fs/data"
)

// DefaultSpillThreshold is the in-memory size before a Spill moves to disk.
const DefaultSpillThreshold int64 = 2 << 20

// Spill is a read-write buffer for pending uploads. It keeps data in memory
// up to a threshold and moves to a temporary file once that is exceeded.
// A Spill is not safe for concurrent use.
type Spill struct {
	threshold int64
	dir       string

	mem    []byte
	file   *os.File
	pos    int64
	size   int64
	closed bool
}

type SpillOption func(*Spill)

// WithTempDir sets the directory used for spilled files.
func WithTempDir(dir string) SpillOption {
	return func(s *Spill) {
		s.dir = dir
	}
}

func NewSpill(threshold int64, opts ...SpillOption) *Spill {
	if threshold <= 0 {
		threshold = DefaultSpillThreshold
	}

	s := &Spill{
		threshold: threshold,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Write writes p at the current offset, growing the buffer as needed.
func (s *Spill) Write(p []byte) (int, error) {
	if s.closed {
		return 0, data.ErrClosed
	}

	end := s.pos + int64(len(p))
	if s.file == nil && end > s.threshold {
		if err := s.spill(); err != nil {
			return 0, err
		}
	}

	if s.file != nil {
		n, err := s.file.WriteAt(p, s.pos)
		s.pos += int64(n)
		s.size = max(s.size, s.pos)
		return n, err
	}

	if end > int64(len(s.mem)) {
		s.mem = append(s.mem, make([]byte, end-int64(len(s.mem)))...)
	}
	n := copy(s.mem[s.pos:], p)
	s.pos += int64(n)
	s.size = max(s.size, s.pos)
	return n, nil
}

func (s *Spill) spill() error {
	file, err := os.CreateTemp(s.dir, "s3fs-spill-*")
	if err != nil {
		return fmt.Errorf("failed to create spill file: %w", err)
	}
	if _, err := file.Write(s.mem); err != nil {
		file.Close()
		os.Remove(file.Name())
		return fmt.Errorf("failed to write spill file: %w", err)
	}

	s.file = file
	s.mem = nil
	return nil
}

// Read reads from the current offset.
func (s *Spill) Read(p []byte) (int, error) {
	if s.closed {
		return 0, data.ErrClosed
	}
	if s.pos >= s.size {
		return 0, io.EOF
	}

	if s.file != nil {
		n, err := s.file.ReadAt(p[:min(int64(len(p)), s.size-s.pos)], s.pos)
		s.pos += int64(n)
		if err == io.EOF && n > 0 {
			err = nil
		}
		return n, err
	}

	n := copy(p, s.mem[s.pos:s.size])
	s.pos += int64(n)
	return n, nil
}

func (s *Spill) Seek(offset int64, whence int) (int64, error) {
	if s.closed {
		return 0, data.ErrClosed
	}

	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = s.pos + offset
	case io.SeekEnd:
		target = s.size + offset
	default:
		return 0, fmt.Errorf("%w: whence %d", data.ErrInvalid, whence)
	}
	if target < 0 {
		return 0, fmt.Errorf("%w: negative offset %d", data.ErrInvalid, target)
	}

	s.pos = target
	return target, nil
}

// Rewind moves the cursor back to the start.
func (s *Spill) Rewind() error {
	_, err := s.Seek(0, io.SeekStart)
	return err
}

// Len returns the number of bytes held.
func (s *Spill) Len() int64 {
	return s.size
}

// Tell returns the current cursor.
func (s *Spill) Tell() int64 {
	return s.pos
}

// Spilled reports whether the data moved to a temporary file.
func (s *Spill) Spilled() bool {
	return s.file != nil
}

// Close releases memory and removes the temporary file.
func (s *Spill) Close() error {
	if s.closed {
		return data.ErrClosed
	}
	s.closed = true
	s.mem = nil

	if s.file == nil {
		return nil
	}

	name := s.file.Name()
	errs := &data.Errors{}
	errs.Add(s.file.Close())
	errs.Add(os.Remove(name))
	return errs.Errors()
}
