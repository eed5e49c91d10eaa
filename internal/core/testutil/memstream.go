package testutil

import (
	"fmt"
	"io"
)

// MemoryStream is an in-memory io.ReadWriteSeeker, standing in for an
// on-disk target file in tests that don't need a real filesystem.
type MemoryStream struct {
	buf []byte
	pos int64
}

// NewMemoryStream creates a MemoryStream seeded with a copy of initial.
func NewMemoryStream(initial []byte) *MemoryStream {
	return &MemoryStream{buf: append([]byte(nil), initial...)}
}

func (m *MemoryStream) Read(p []byte) (int, error) {
	if m.pos >= int64(len(m.buf)) {
		return 0, io.EOF
	}
	n := copy(p, m.buf[m.pos:])
	m.pos += int64(n)
	return n, nil
}

func (m *MemoryStream) Write(p []byte) (int, error) {
	end := m.pos + int64(len(p))
	if end > int64(len(m.buf)) {
		grown := make([]byte, end)
		copy(grown, m.buf)
		m.buf = grown
	}
	n := copy(m.buf[m.pos:end], p)
	m.pos += int64(n)
	return n, nil
}

func (m *MemoryStream) Seek(offset int64, whence int) (int64, error) {
	var newPos int64
	switch whence {
	case io.SeekStart:
		newPos = offset
	case io.SeekCurrent:
		newPos = m.pos + offset
	case io.SeekEnd:
		newPos = int64(len(m.buf)) + offset
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}
	if newPos < 0 {
		return 0, fmt.Errorf("negative seek position %d", newPos)
	}
	m.pos = newPos
	return newPos, nil
}

// Sync is a no-op, satisfying the flusher interface WriteToTarget probes
// for.
func (m *MemoryStream) Sync() error { return nil }

// Bytes returns a copy of the stream's current content.
func (m *MemoryStream) Bytes() []byte { return append([]byte(nil), m.buf...) }
