package core

import (
	"context"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
)

// ForwardSeekStream is one part of a multi-range HTTP response: a
// forward-only byte stream covering [RangeStart, AvailableToOffset) of the
// remote resource. The caller may skip bytes by reading and discarding,
// but can never seek backward (spec §4.E).
type ForwardSeekStream struct {
	reader            io.Reader
	rangeStart        int64
	availableToOffset int64
	cursor            int64
}

// RangeStart is the resource offset the first byte of this part covers.
func (s *ForwardSeekStream) RangeStart() int64 { return s.rangeStart }

// AvailableToOffset is the resource offset just past the last byte this
// part can supply.
func (s *ForwardSeekStream) AvailableToOffset() int64 { return s.availableToOffset }

// Offset is the resource offset of the next byte Read will return.
func (s *ForwardSeekStream) Offset() int64 { return s.cursor }

func (s *ForwardSeekStream) Read(p []byte) (int, error) {
	n, err := s.reader.Read(p)
	s.cursor += int64(n)
	return n, err
}

// SkipTo discards bytes until Offset reaches target. target must not be
// behind the current cursor.
func (s *ForwardSeekStream) SkipTo(target int64) error {
	if target < s.cursor {
		return fmt.Errorf("%w: cannot seek backward from %d to %d", ErrInvalidArgument, s.cursor, target)
	}
	if target == s.cursor {
		return nil
	}
	_, err := io.CopyN(io.Discard, s, target-s.cursor)
	return err
}

// multipartRangeReader is the Multipart Range Reader (spec §4.E): it
// wraps a 206 response body, whether it is a true multipart/byteranges
// document or a single-range body, and surfaces each underlying range as
// a ForwardSeekStream.
type multipartRangeReader struct {
	resp *http.Response
	mr   *multipart.Reader

	single         bool
	singleConsumed bool
	singleStart    int64
	singleEnd      int64
}

func newMultipartRangeReader(resp *http.Response) (*multipartRangeReader, error) {
	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err == nil && strings.HasPrefix(mediaType, "multipart/") {
		boundary, ok := params["boundary"]
		if !ok {
			return nil, fmt.Errorf("multipart response missing boundary parameter")
		}
		return &multipartRangeReader{resp: resp, mr: multipart.NewReader(resp.Body, boundary)}, nil
	}

	start, end, err := parseContentRange(resp.Header.Get("Content-Range"))
	if err != nil {
		return nil, fmt.Errorf("single-range response: %w", err)
	}
	return &multipartRangeReader{resp: resp, single: true, singleStart: start, singleEnd: end}, nil
}

// nextPart returns the next part of the response, or nil when exhausted.
func (m *multipartRangeReader) nextPart(ctx context.Context) (*ForwardSeekStream, error) {
	select {
	case <-ctx.Done():
		return nil, ErrCancelled
	default:
	}

	if m.single {
		if m.singleConsumed {
			return nil, nil
		}
		m.singleConsumed = true
		return &ForwardSeekStream{
			reader:            m.resp.Body,
			rangeStart:        m.singleStart,
			availableToOffset: m.singleEnd,
			cursor:            m.singleStart,
		}, nil
	}

	part, err := m.mr.NextPart()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read multipart body part: %v", ErrTransientIO, err)
	}

	start, end, err := parseContentRange(part.Header.Get("Content-Range"))
	if err != nil {
		return nil, fmt.Errorf("parse multipart part Content-Range: %w", err)
	}

	return &ForwardSeekStream{reader: part, rangeStart: start, availableToOffset: end, cursor: start}, nil
}

func (m *multipartRangeReader) Close() error {
	return m.resp.Body.Close()
}

// parseContentRange parses a "bytes start-end/total" or "bytes
// start-end/*" header into a half-open [start, end) range.
func parseContentRange(h string) (start, end int64, err error) {
	const prefix = "bytes "
	if !strings.HasPrefix(h, prefix) {
		return 0, 0, fmt.Errorf("missing or malformed Content-Range: %q", h)
	}
	rest := strings.TrimPrefix(h, prefix)

	slash := strings.IndexByte(rest, '/')
	if slash < 0 {
		return 0, 0, fmt.Errorf("malformed Content-Range: %q", h)
	}
	rangePart := rest[:slash]

	dash := strings.IndexByte(rangePart, '-')
	if dash < 0 {
		return 0, 0, fmt.Errorf("malformed Content-Range: %q", h)
	}

	s, err := strconv.ParseInt(rangePart[:dash], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed Content-Range start: %w", err)
	}
	e, err := strconv.ParseInt(rangePart[dash+1:], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed Content-Range end: %w", err)
	}
	return s, e + 1, nil
}
