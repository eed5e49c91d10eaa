package core

import (
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/patchkit/corepatch/internal/core/testutil"
)

func TestParseContentRange(t *testing.T) {
	start, end, err := parseContentRange("bytes 10-19/100")
	require.NoError(t, err)
	require.EqualValues(t, 10, start)
	require.EqualValues(t, 20, end)

	_, _, err = parseContentRange("nonsense")
	require.Error(t, err)
}

func TestMultipartRangeReader_SingleRange(t *testing.T) {
	content := make([]byte, 64)
	for i := range content {
		content[i] = byte(i)
	}
	srv := testutil.NewByteRangeServer(content)
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	req.Header.Set("Range", "bytes=10-19")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusPartialContent, resp.StatusCode)

	mr, err := newMultipartRangeReader(resp)
	require.NoError(t, err)

	part, err := mr.nextPart(context.Background())
	require.NoError(t, err)
	require.NotNil(t, part)
	require.EqualValues(t, 10, part.RangeStart())
	require.EqualValues(t, 20, part.AvailableToOffset())

	data, err := io.ReadAll(part)
	require.NoError(t, err)
	require.Equal(t, content[10:20], data)

	next, err := mr.nextPart(context.Background())
	require.NoError(t, err)
	require.Nil(t, next)
}

func TestMultipartRangeReader_MultipleRanges(t *testing.T) {
	content := make([]byte, 128)
	for i := range content {
		content[i] = byte(i)
	}
	srv := testutil.NewByteRangeServer(content)
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	req.Header.Set("Range", "bytes=0-9, 50-59, 100-109")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusPartialContent, resp.StatusCode)

	mr, err := newMultipartRangeReader(resp)
	require.NoError(t, err)

	var got [][]byte
	for {
		part, err := mr.nextPart(context.Background())
		require.NoError(t, err)
		if part == nil {
			break
		}
		data, err := io.ReadAll(part)
		require.NoError(t, err)
		got = append(got, data)
	}

	require.Len(t, got, 3)
	require.Equal(t, content[0:10], got[0])
	require.Equal(t, content[50:60], got[1])
	require.Equal(t, content[100:110], got[2])
}

func TestForwardSeekStream_SkipToRejectsBackwardSeek(t *testing.T) {
	content := make([]byte, 32)
	srv := testutil.NewByteRangeServer(content)
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	req.Header.Set("Range", "bytes=0-31")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	mr, err := newMultipartRangeReader(resp)
	require.NoError(t, err)
	part, err := mr.nextPart(context.Background())
	require.NoError(t, err)

	require.NoError(t, part.SkipTo(10))
	require.EqualValues(t, 10, part.Offset())

	err = part.SkipTo(5)
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestCoalesceRanges(t *testing.T) {
	ranges := []byteRange{
		{start: 0, end: 10},
		{start: 10, end: 20},
		{start: 5000, end: 5010},
		{start: 5500, end: 5510},
	}
	merged := coalesceRanges(ranges)
	require.Equal(t, []byteRange{
		{start: 0, end: 20},
		{start: 5000, end: 5510},
	}, merged)
}
