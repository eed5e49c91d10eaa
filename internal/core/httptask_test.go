package core

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/patchkit/corepatch/internal/core/testutil"
)

func buildHTTPTaskFixture(t *testing.T, content []byte) (*testutil.FakeIndex, *Registry, *testutil.MemoryStream) {
	t.Helper()
	b := testutil.NewIndexBuilder()
	b.AddTarget("data.bin", int64(len(content))).
		AddSourcePart(0, content[0:16], 0, 0).
		AddSourcePart(16, content[16:32], 0, 16).
		AddSourcePart(32, content[32:48], 0, 32)
	idx := b.Build()

	ledger := NewLedger()
	registry := NewRegistry(idx, ledger)
	stream := testutil.NewMemoryStream(make([]byte, len(content)))
	require.NoError(t, registry.AttachForRead(0, stream))
	return idx, registry, stream
}

func TestHTTPInstallTask_RepairsAllPendingParts(t *testing.T) {
	content := make([]byte, 48)
	for i := range content {
		content[i] = byte(i + 1)
	}
	idx, registry, stream := buildHTTPTaskFixture(t, content)

	srv := testutil.NewByteRangeServer(content)
	defer srv.Close()

	parts := []PartRef{
		{TargetIndex: 0, PartIndex: 0},
		{TargetIndex: 0, PartIndex: 1},
		{TargetIndex: 0, PartIndex: 2},
	}
	task := newHTTPInstallTask(idx, registry, nil, http.DefaultClient, 0, srv.URL, "", parts)

	require.NoError(t, task.repair(context.Background()))
	require.Equal(t, content, stream.Bytes())
	require.EqualValues(t, 48, task.progressValue())
}

func TestHTTPInstallTask_RetriesThroughTransientFailures(t *testing.T) {
	content := make([]byte, 16)
	for i := range content {
		content[i] = byte(i + 1)
	}
	idx, registry, stream := buildHTTPTaskFixture(t, append(content, make([]byte, 32)...))

	srv := testutil.NewByteRangeServer(append(content, make([]byte, 32)...))
	srv.FailFirstN = 2
	defer srv.Close()

	parts := []PartRef{{TargetIndex: 0, PartIndex: 0}}
	task := newHTTPInstallTask(idx, registry, nil, http.DefaultClient, 0, srv.URL, "", parts)

	require.NoError(t, task.repair(context.Background()))
	require.Equal(t, content, stream.Bytes()[0:16])
	require.GreaterOrEqual(t, srv.Requests(), 3)
}

func TestHTTPInstallTask_SetsUniqueIDHeaderWhenProvided(t *testing.T) {
	content := make([]byte, 16)
	idx, registry, _ := buildHTTPTaskFixture(t, append(content, make([]byte, 32)...))

	var gotHeader string
	inner := testutil.NewByteRangeServer(append(content, make([]byte, 32)...))
	defer inner.Close()
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-Patch-Unique-Id")
		innerReq, err := http.NewRequest(http.MethodGet, inner.URL+r.URL.String(), nil)
		require.NoError(t, err)
		innerReq.Header.Set("Range", r.Header.Get("Range"))
		resp, err := http.DefaultClient.Do(innerReq)
		require.NoError(t, err)
		defer resp.Body.Close()
		for k, v := range resp.Header {
			w.Header()[k] = v
		}
		w.WriteHeader(resp.StatusCode)
		io.Copy(w, resp.Body)
	}))
	defer proxy.Close()

	parts := []PartRef{{TargetIndex: 0, PartIndex: 0}}
	task := newHTTPInstallTask(idx, registry, nil, http.DefaultClient, 0, proxy.URL, "session-123", parts)

	require.NoError(t, task.repair(context.Background()))
	require.Equal(t, "session-123", gotHeader)
}

func TestHTTPInstallTask_CancellationStopsRetries(t *testing.T) {
	content := make([]byte, 16)
	idx, registry, _ := buildHTTPTaskFixture(t, append(content, make([]byte, 32)...))

	srv := testutil.NewByteRangeServer(append(content, make([]byte, 32)...))
	srv.FailFirstN = 100
	defer srv.Close()

	parts := []PartRef{{TargetIndex: 0, PartIndex: 0}}
	task := newHTTPInstallTask(idx, registry, nil, http.DefaultClient, 0, srv.URL, "", parts)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := task.repair(ctx)
	require.ErrorIs(t, err, ErrCancelled)
}

func TestHTTPInstallTask_ExhaustsRetriesWithoutCancellation(t *testing.T) {
	content := make([]byte, 16)
	idx, registry, _ := buildHTTPTaskFixture(t, append(content, make([]byte, 32)...))

	srv := testutil.NewByteRangeServer(append(content, make([]byte, 32)...))
	srv.FailFirstN = maxOuterAttempts + 1
	defer srv.Close()

	parts := []PartRef{{TargetIndex: 0, PartIndex: 0}}
	task := newHTTPInstallTask(idx, registry, nil, http.DefaultClient, 0, srv.URL, "", parts)

	err := task.repair(context.Background())
	require.ErrorIs(t, err, ErrExhaustedRetries)
}

func TestCoalesceRanges_RespectsGapThreshold(t *testing.T) {
	ranges := []byteRange{
		{start: 2000, end: 2010},
		{start: 0, end: 10},
	}
	merged := coalesceRanges(ranges)
	require.Len(t, merged, 2)
	require.Equal(t, byteRange{start: 0, end: 10}, merged[0])
}
