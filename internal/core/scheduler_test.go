package core

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/patchkit/corepatch/internal/core/testutil"
)

func TestScheduler_InstallWithEmptyQueueStillReconstructs(t *testing.T) {
	b := testutil.NewIndexBuilder()
	b.AddTarget("data.bin", 8).AddEmbeddedPart(0, []byte("ABCDEFGH"))
	idx := b.Build()

	ledger := NewLedger()
	ledger.MarkFileMissing(idx.Target(0))

	registry := NewRegistry(idx, ledger)
	stream := testutil.NewMemoryStream(make([]byte, 8))
	require.NoError(t, registry.AttachForRead(0, stream))

	sched := NewScheduler(idx, registry, ledger, nil)
	require.NoError(t, sched.Install(context.Background(), 0))
	require.Equal(t, []byte("ABCDEFGH"), stream.Bytes())
}

func TestScheduler_QueueStreamInstallThenReconstructsRemainder(t *testing.T) {
	source := []byte("SOURCEPART0000000")
	b := testutil.NewIndexBuilder()
	b.AddTarget("data.bin", 16).
		AddSourcePart(0, source[0:8], 0, 0).
		AddEmbeddedPart(8, []byte("EMBEDDED"))
	idx := b.Build()

	ledger := NewLedger()
	ledger.MarkFileMissing(idx.Target(0))

	registry := NewRegistry(idx, ledger)
	stream := testutil.NewMemoryStream(make([]byte, 16))
	require.NoError(t, registry.AttachForRead(0, stream))

	sched := NewScheduler(idx, registry, ledger, nil)
	sched.QueueStreamInstall(0, bytes.NewReader(source), []PartRef{{TargetIndex: 0, PartIndex: 0}})

	require.NoError(t, sched.Install(context.Background(), 2))
	require.Equal(t, source[0:8], stream.Bytes()[0:8])
	require.Equal(t, []byte("EMBEDDED"), stream.Bytes()[8:16])
}

func TestScheduler_InstallPropagatesFirstTaskError(t *testing.T) {
	b := testutil.NewIndexBuilder()
	b.AddTarget("data.bin", 16).AddSourcePart(0, make([]byte, 16), 0, 0)
	idx := b.Build()

	ledger := NewLedger()
	ledger.MarkFileMissing(idx.Target(0))

	registry := NewRegistry(idx, ledger)
	require.NoError(t, registry.AttachForRead(0, testutil.NewMemoryStream(make([]byte, 16))))

	sched := NewScheduler(idx, registry, ledger, nil)
	tooShort := bytes.NewReader(make([]byte, 4))
	sched.QueueStreamInstall(0, tooShort, []PartRef{{TargetIndex: 0, PartIndex: 0}})

	err := sched.Install(context.Background(), 1)
	require.ErrorIs(t, err, ErrTransientIO)
}

func TestSplitIntoChunks_DividesCeilingStyle(t *testing.T) {
	items := make([]PartRef, 10)
	for i := range items {
		items[i] = PartRef{TargetIndex: 0, PartIndex: i}
	}
	chunks := splitIntoChunks(items, 3)
	require.Len(t, chunks, 3)
	require.Len(t, chunks[0], 4)
	require.Len(t, chunks[1], 4)
	require.Len(t, chunks[2], 2)
}

func TestSplitIntoChunks_EmptyInputProducesNoChunks(t *testing.T) {
	require.Nil(t, splitIntoChunks(nil, 4))
}
