package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/patchkit/corepatch/internal/core/testutil"
)

func TestReconstructor_WritesEmbeddedPartsOnly(t *testing.T) {
	b := testutil.NewIndexBuilder()
	b.AddTarget("data.bin", 16).
		AddSourcePart(0, make([]byte, 8), 0, 0).
		AddEmbeddedPart(8, []byte("ABCDEFGH"))
	idx := b.Build()

	ledger := NewLedger()
	ledger.MarkFileMissing(idx.Target(0))

	registry := NewRegistry(idx, ledger)
	stream := testutil.NewMemoryStream(make([]byte, 16))
	require.NoError(t, registry.AttachForRead(0, stream))

	rc := NewReconstructor(idx, registry, ledger)
	require.NoError(t, rc.ReconstructNonPatchParts(context.Background()))

	require.Equal(t, []byte("ABCDEFGH"), stream.Bytes()[8:16])
	require.Equal(t, []byte{0, 0, 0, 0, 0, 0, 0, 0}, stream.Bytes()[0:8])
}

func TestReconstructor_SkipsTargetsWithNoAttachedStream(t *testing.T) {
	b := testutil.NewIndexBuilder()
	b.AddTarget("data.bin", 8).AddEmbeddedPart(0, make([]byte, 8))
	idx := b.Build()

	ledger := NewLedger()
	ledger.MarkFileMissing(idx.Target(0))

	registry := NewRegistry(idx, ledger)
	rc := NewReconstructor(idx, registry, ledger)

	require.NoError(t, rc.ReconstructNonPatchParts(context.Background()))
}

func TestReconstructor_HonorsCancellation(t *testing.T) {
	b := testutil.NewIndexBuilder()
	b.AddTarget("data.bin", 8).AddEmbeddedPart(0, make([]byte, 8))
	idx := b.Build()

	ledger := NewLedger()
	ledger.MarkFileMissing(idx.Target(0))

	registry := NewRegistry(idx, ledger)
	require.NoError(t, registry.AttachForRead(0, testutil.NewMemoryStream(make([]byte, 8))))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rc := NewReconstructor(idx, registry, ledger)
	require.ErrorIs(t, rc.ReconstructNonPatchParts(ctx), ErrCancelled)
}
