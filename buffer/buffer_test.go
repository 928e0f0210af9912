package buffer

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/mwantia/s3fs/data"
)

// countingReader generates a deterministic byte pattern and counts reads.
type countingReader struct {
	size   int64
	offset int64
	reads  int
	closed bool
}

func (cr *countingReader) Read(p []byte) (int, error) {
	cr.reads++
	if cr.offset >= cr.size {
		return 0, io.EOF
	}

	n := int(min(int64(len(p)), cr.size-cr.offset))
	for i := range n {
		p[i] = byte((cr.offset + int64(i)) % 251)
	}
	cr.offset += int64(n)
	return n, nil
}

func (cr *countingReader) Close() error {
	cr.closed = true
	return nil
}

func TestSeekable_SeekLimitBoundary(t *testing.T) {
	remote := &countingReader{size: DefaultSeekLimit + 1024}
	s := NewSeekable(remote)
	defer s.Close()

	offset, err := s.Seek(DefaultSeekLimit, io.SeekStart)
	if err != nil {
		t.Fatalf("Seek to limit failed: %v", err)
	}
	if offset != DefaultSeekLimit {
		t.Errorf("Expected offset %d, got %d", DefaultSeekLimit, offset)
	}

	if _, err := s.Seek(DefaultSeekLimit+1, io.SeekStart); !errors.Is(err, data.ErrSeekLimit) {
		t.Errorf("Expected ErrSeekLimit, got %v", err)
	}
	if got := s.Tell(); got != DefaultSeekLimit {
		t.Errorf("Rejected seek moved cursor to %d", got)
	}
}

func TestSeekable_ForwardSeekReadsInChunks(t *testing.T) {
	remote := &countingReader{size: 100000}
	s := NewSeekable(remote)
	defer s.Close()

	if _, err := s.Seek(40000, io.SeekStart); err != nil {
		t.Fatalf("Seek failed: %v", err)
	}
	// 40000 bytes need three 16384 byte chunks
	if remote.reads != 3 {
		t.Errorf("Expected 3 remote reads, got %d", remote.reads)
	}
	if got := s.Buffered(); got != 3*DefaultChunkSize {
		t.Errorf("Expected %d buffered bytes, got %d", 3*DefaultChunkSize, got)
	}

	p := make([]byte, 4)
	if _, err := io.ReadFull(s, p); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	for i, b := range p {
		if want := byte((40000 + i) % 251); b != want {
			t.Errorf("Byte %d: expected %d, got %d", i, want, b)
		}
	}
}

func TestSeekable_BackwardSeekLocality(t *testing.T) {
	remote := &countingReader{size: 64 * 1024}
	s := NewSeekable(remote)
	defer s.Close()

	first := make([]byte, 10000)
	if _, err := io.ReadFull(s, first); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	reads := remote.reads

	for _, target := range []int64{0, 1, 5000, 9999, 10000} {
		if _, err := s.Seek(target, io.SeekStart); err != nil {
			t.Fatalf("Seek to %d failed: %v", target, err)
		}
		p := make([]byte, 10000-target)
		if _, err := io.ReadFull(s, p); err != nil {
			t.Fatalf("Read after seek to %d failed: %v", target, err)
		}
		if !bytes.Equal(p, first[target:]) {
			t.Errorf("Content mismatch after seek to %d", target)
		}
	}

	if remote.reads != reads {
		t.Errorf("Expected no additional remote reads, got %d", remote.reads-reads)
	}
}

func TestSeekable_EOF(t *testing.T) {
	s := NewSeekable(io.NopCloser(bytes.NewReader([]byte("hello"))))
	defer s.Close()

	content, err := io.ReadAll(s)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if string(content) != "hello" {
		t.Errorf("Expected hello, got %q", content)
	}
	if !s.EOF() {
		t.Errorf("Expected EOF after full read")
	}
	if s.Size() != 5 {
		t.Errorf("Expected size 5 after EOF, got %d", s.Size())
	}

	if _, err := s.Seek(-2, io.SeekEnd); err != nil {
		t.Fatalf("SeekEnd failed: %v", err)
	}
	if s.EOF() {
		t.Errorf("Expected EOF to clear after seeking back")
	}
	rest, _ := io.ReadAll(s)
	if string(rest) != "lo" {
		t.Errorf("Expected lo, got %q", rest)
	}
}

func TestSeekable_InvalidSeeks(t *testing.T) {
	s := NewSeekable(io.NopCloser(bytes.NewReader([]byte("abc"))))

	if _, err := s.Seek(-1, io.SeekStart); !errors.Is(err, data.ErrInvalid) {
		t.Errorf("Expected ErrInvalid for negative offset, got %v", err)
	}
	if _, err := s.Seek(0, io.SeekEnd); !errors.Is(err, data.ErrInvalid) {
		t.Errorf("Expected ErrInvalid for SeekEnd with unknown size, got %v", err)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := s.Read(make([]byte, 1)); !errors.Is(err, data.ErrClosed) {
		t.Errorf("Expected ErrClosed after close, got %v", err)
	}
	if err := s.Close(); !errors.Is(err, data.ErrClosed) {
		t.Errorf("Expected ErrClosed on second close, got %v", err)
	}
}

func TestSeekable_ReadPastLimitThenSeekBack(t *testing.T) {
	tests := map[string]struct {
		limit int64
		chunk int
	}{
		"default limit": {DefaultSeekLimit, DefaultChunkSize},
		"small limit":   {100, 50},
	}

	for name, test := range tests {
		t.Run(name, func(tst *testing.T) {
			remote := &countingReader{size: test.limit + 1024}
			s := NewSeekable(remote, WithSeekLimit(test.limit), WithChunkSize(test.chunk))
			defer s.Close()

			if _, err := s.Seek(test.limit, io.SeekStart); err != nil {
				tst.Fatalf("Seek to limit failed: %v", err)
			}
			first := make([]byte, 100)
			if _, err := io.ReadFull(s, first); err != nil {
				tst.Fatalf("Read past limit failed: %v", err)
			}

			reads := remote.reads
			if _, err := s.Seek(test.limit, io.SeekStart); err != nil {
				tst.Fatalf("Seek back to limit failed: %v", err)
			}
			again := make([]byte, 100)
			if _, err := io.ReadFull(s, again); err != nil {
				tst.Fatalf("Read after seek back failed: %v", err)
			}

			if !bytes.Equal(first, again) {
				tst.Errorf("Expected identical bytes after seeking back")
			}
			if remote.reads != reads {
				tst.Errorf("Expected no remote reads after seeking back, got %d", remote.reads-reads)
			}
			if got := again[0]; got != byte(test.limit%251) {
				tst.Errorf("Expected byte %d at the limit, got %d", byte(test.limit%251), got)
			}
		})
	}
}

func TestSpill_MemoryAndDisk(t *testing.T) {
	for name, threshold := range map[string]int64{"memory": 1024, "disk": 8} {
		t.Run(name, func(tst *testing.T) {
			s := NewSpill(threshold, WithTempDir(tst.TempDir()))

			if _, err := s.Write([]byte("hello ")); err != nil {
				tst.Fatalf("Write failed: %v", err)
			}
			if _, err := s.Write([]byte("world")); err != nil {
				tst.Fatalf("Write failed: %v", err)
			}
			if s.Len() != 11 {
				tst.Errorf("Expected length 11, got %d", s.Len())
			}
			if s.Spilled() != (name == "disk") {
				tst.Errorf("Unexpected spill state %v", s.Spilled())
			}

			// Overwrite in place
			if _, err := s.Seek(0, io.SeekStart); err != nil {
				tst.Fatalf("Seek failed: %v", err)
			}
			if _, err := s.Write([]byte("J")); err != nil {
				tst.Fatalf("Write failed: %v", err)
			}

			if err := s.Rewind(); err != nil {
				tst.Fatalf("Rewind failed: %v", err)
			}
			content, err := io.ReadAll(s)
			if err != nil {
				tst.Fatalf("ReadAll failed: %v", err)
			}
			if string(content) != "Jello world" {
				tst.Errorf("Expected 'Jello world', got %q", content)
			}

			if err := s.Close(); err != nil {
				tst.Fatalf("Close failed: %v", err)
			}
		})
	}
}
