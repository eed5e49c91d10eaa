package testutil

import (
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strconv"
	"strings"
)

type reqRange struct {
	start, end int64 // end exclusive
}

// NewByteRangeServer starts an httptest.Server that serves content over
// GET, honoring a "Range: bytes=a-b, c-d, ..." request header the same
// way a real origin for this scheme would: a single requested range gets
// a plain 206 with Content-Range, multiple ranges get a
// multipart/byteranges 206. FailFirstN requests (if set on the returned
// *RangeServer) return 500 before succeeding, to exercise retry/backoff.
func NewByteRangeServer(content []byte) *RangeServer {
	rs := &RangeServer{content: content}
	rs.Server = httptest.NewServer(http.HandlerFunc(rs.handle))
	return rs
}

// RangeServer wraps an httptest.Server with request counting, so tests
// can simulate transient failures before success (spec §8 scenario S4).
type RangeServer struct {
	*httptest.Server
	content []byte

	FailFirstN int
	requests   int
}

// Requests returns how many requests the server has handled so far.
func (rs *RangeServer) Requests() int { return rs.requests }

func (rs *RangeServer) handle(w http.ResponseWriter, r *http.Request) {
	rs.requests++
	if rs.requests <= rs.FailFirstN {
		http.Error(w, "simulated transient failure", http.StatusInternalServerError)
		return
	}

	ranges, err := parseRequestRanges(r.Header.Get("Range"), int64(len(rs.content)))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if len(ranges) == 0 {
		w.Write(rs.content)
		return
	}

	if len(ranges) == 1 {
		rg := ranges[0]
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", rg.start, rg.end-1, len(rs.content)))
		w.WriteHeader(http.StatusPartialContent)
		w.Write(rs.content[rg.start:rg.end])
		return
	}

	const boundary = "patchcoretestboundary"
	w.Header().Set("Content-Type", "multipart/byteranges; boundary="+boundary)
	w.WriteHeader(http.StatusPartialContent)

	mw := multipart.NewWriter(w)
	mw.SetBoundary(boundary)
	for _, rg := range ranges {
		part, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Range": {fmt.Sprintf("bytes %d-%d/%d", rg.start, rg.end-1, len(rs.content))},
		})
		if err != nil {
			return
		}
		part.Write(rs.content[rg.start:rg.end])
	}
	mw.Close()
}

func parseRequestRanges(header string, size int64) ([]reqRange, error) {
	if header == "" {
		return nil, nil
	}
	const prefix = "bytes="
	if !strings.HasPrefix(header, prefix) {
		return nil, fmt.Errorf("malformed Range header: %q", header)
	}

	out := make([]reqRange, 0)
	for _, piece := range strings.Split(strings.TrimPrefix(header, prefix), ",") {
		piece = strings.TrimSpace(piece)
		dash := strings.IndexByte(piece, '-')
		if dash < 0 {
			return nil, fmt.Errorf("malformed Range segment: %q", piece)
		}
		start, err := strconv.ParseInt(piece[:dash], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed Range start: %w", err)
		}
		endInclusive, err := strconv.ParseInt(piece[dash+1:], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed Range end: %w", err)
		}
		if endInclusive+1 > size {
			endInclusive = size - 1
		}
		out = append(out, reqRange{start: start, end: endInclusive + 1})
	}
	return out, nil
}
