package buffer

import (
	"fmt"
	"io"
	"sync"

	"github.com/mwantia/s3fs/data"
)

const (
	// DefaultSeekLimit is the highest offset a Seekable will buffer up to.
	DefaultSeekLimit int64 = 52428800
	// DefaultChunkSize is the size of each forward read while seeking.
	DefaultChunkSize = 16384
)

// Seekable turns a forward-only remote stream into a seekable reader.
//
// Every byte read from the remote is retained until Close, so seeking
// backward never touches the remote again. Seeking forward past the
// retained region reads the remote in fixed chunks until the target is
// covered. Seek targets above the limit are rejected with data.ErrSeekLimit;
// sequential reads are not bounded by it.
type Seekable struct {
	mu sync.Mutex

	body   io.ReadCloser
	cache  []byte
	pos    int64
	remote int64
	size   int64
	eof    bool
	closed bool

	limit int64
	chunk int
}

type SeekableOption func(*Seekable)

// WithSeekLimit overrides DefaultSeekLimit.
func WithSeekLimit(limit int64) SeekableOption {
	return func(s *Seekable) {
		if limit > 0 {
			s.limit = limit
		}
	}
}

// WithChunkSize overrides DefaultChunkSize.
func WithChunkSize(chunk int) SeekableOption {
	return func(s *Seekable) {
		if chunk > 0 {
			s.chunk = chunk
		}
	}
}

// WithSize declares the total remote size, which enables io.SeekEnd.
func WithSize(size int64) SeekableOption {
	return func(s *Seekable) {
		s.size = size
	}
}

func NewSeekable(body io.ReadCloser, opts ...SeekableOption) *Seekable {
	s := &Seekable{
		body:  body,
		size:  -1,
		limit: DefaultSeekLimit,
		chunk: DefaultChunkSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Read serves bytes from the retained region first and from the remote
// stream once the region is exhausted.
func (s *Seekable) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, data.ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}

	if s.pos < int64(len(s.cache)) {
		n := copy(p, s.cache[s.pos:])
		s.pos += int64(n)
		return n, nil
	}

	// Past the end of an exhausted stream
	if s.pos > s.remote || s.eof {
		return 0, io.EOF
	}

	n, err := s.pull(p)
	s.pos += int64(n)
	if n > 0 {
		return n, nil
	}
	return 0, err
}

// pull reads once from the remote into p and retains the bytes read.
func (s *Seekable) pull(p []byte) (int, error) {
	n, err := s.body.Read(p)
	if n > 0 {
		s.cache = append(s.cache, p[:n]...)
		s.remote += int64(n)
	}
	if err == io.EOF {
		s.eof = true
		if s.size < 0 {
			s.size = s.remote
		}
	}
	if err != nil && err != io.EOF {
		return n, err
	}
	if n == 0 && s.eof {
		return 0, io.EOF
	}
	return n, nil
}

// Seek moves the cursor and returns the new absolute offset.
func (s *Seekable) Seek(offset int64, whence int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

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
		if s.size < 0 {
			return 0, fmt.Errorf("%w: size of stream is unknown", data.ErrInvalid)
		}
		target = s.size + offset
	default:
		return 0, fmt.Errorf("%w: whence %d", data.ErrInvalid, whence)
	}

	if target < 0 {
		return 0, fmt.Errorf("%w: negative offset %d", data.ErrInvalid, target)
	}
	if target > s.limit {
		return 0, fmt.Errorf("%w: offset %d exceeds %d", data.ErrSeekLimit, target, s.limit)
	}

	if err := s.fill(target); err != nil {
		return 0, err
	}

	s.pos = target
	return target, nil
}

// fill reads forward in chunks until the retained region covers target
// or the remote is exhausted.
func (s *Seekable) fill(target int64) error {
	if s.remote >= target || s.eof {
		return nil
	}

	buf := make([]byte, s.chunk)
	for s.remote < target && !s.eof {
		if _, err := s.pull(buf); err != nil && err != io.EOF {
			return err
		}
	}

	return nil
}

// Tell returns the current cursor.
func (s *Seekable) Tell() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.pos
}

// EOF reports whether the retained region and the remote are both exhausted.
func (s *Seekable) EOF() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.eof && s.pos >= s.remote
}

// Size returns the remote size, or -1 while it is unknown.
func (s *Seekable) Size() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.size
}

// Buffered returns the number of bytes consumed from the remote.
func (s *Seekable) Buffered() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.remote
}

func (s *Seekable) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return data.ErrClosed
	}

	s.closed = true
	s.cache = nil
	return s.body.Close()
}
