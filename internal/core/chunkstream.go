package core

import (
	"fmt"
	"io"
)

// chunkStream provides a bounded [start,end) view over an underlying
// random-access stream, read/write/seek translated into the underlying
// stream's coordinate space. Adapted from the teacher's ChunkStream: same
// seek/read/write/copy contract, generalized away from chunk-download
// naming since here it bounds writes to a target's [0, FileSize) window
// (see Registry.WriteToTarget).
type chunkStream struct {
	stream io.ReadWriteSeeker
	start  int64
	end    int64
	curPos int64
}

// newChunkStream wraps stream with a view restricted to [start, end).
// stream's current position is left seeked to start.
func newChunkStream(stream io.ReadWriteSeeker, start, end int64) (*chunkStream, error) {
	if end < start {
		return nil, fmt.Errorf("%w: chunk end %d before start %d", ErrInvalidArgument, end, start)
	}
	if _, err := stream.Seek(start, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek to chunk start: %w", err)
	}
	return &chunkStream{stream: stream, start: start, end: end}, nil
}

func (c *chunkStream) size() int64   { return c.end - c.start }
func (c *chunkStream) remain() int64 { return c.size() - c.curPos }

func (c *chunkStream) Read(p []byte) (int, error) {
	if c.remain() == 0 {
		return 0, io.EOF
	}
	toRead := int64(len(p))
	if toRead > c.remain() {
		toRead = c.remain()
	}
	if _, err := c.stream.Seek(c.start+c.curPos, io.SeekStart); err != nil {
		return 0, err
	}
	n, err := c.stream.Read(p[:toRead])
	c.curPos += int64(n)
	return n, err
}

func (c *chunkStream) Write(p []byte) (int, error) {
	if c.remain() == 0 {
		return 0, io.ErrShortWrite
	}
	toWrite := int64(len(p))
	if toWrite > c.remain() {
		toWrite = c.remain()
	}
	if _, err := c.stream.Seek(c.start+c.curPos, io.SeekStart); err != nil {
		return 0, err
	}
	n, err := c.stream.Write(p[:toWrite])
	c.curPos += int64(n)
	return n, err
}

func (c *chunkStream) Seek(offset int64, whence int) (int64, error) {
	var newPos int64
	switch whence {
	case io.SeekStart:
		newPos = offset
	case io.SeekCurrent:
		newPos = c.curPos + offset
	case io.SeekEnd:
		newPos = c.size() + offset
	default:
		return 0, fmt.Errorf("%w: invalid whence %d", ErrInvalidArgument, whence)
	}
	if newPos < 0 || newPos > c.size() {
		return 0, fmt.Errorf("%w: seek position %d out of [0,%d]", ErrInvalidArgument, newPos, c.size())
	}
	c.curPos = newPos
	if _, err := c.stream.Seek(c.start+newPos, io.SeekStart); err != nil {
		return 0, err
	}
	return newPos, nil
}

// length returns the fixed size of the view.
func (c *chunkStream) length() int64 { return c.size() }
