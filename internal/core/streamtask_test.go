package core

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/patchkit/corepatch/internal/core/testutil"
)

func TestStreamInstallTask_ReadsPartsInOrderSkippingGaps(t *testing.T) {
	source := make([]byte, 64)
	for i := range source {
		source[i] = byte(i + 1)
	}

	b := testutil.NewIndexBuilder()
	b.AddTarget("data.bin", 32).
		AddSourcePart(0, source[0:16], 0, 0).
		AddSourcePart(16, source[48:64], 0, 48)
	idx := b.Build()

	ledger := NewLedger()
	registry := NewRegistry(idx, ledger)
	stream := testutil.NewMemoryStream(make([]byte, 32))
	require.NoError(t, registry.AttachForRead(0, stream))

	parts := []PartRef{
		{TargetIndex: 0, PartIndex: 0},
		{TargetIndex: 0, PartIndex: 1},
	}
	task := newStreamInstallTask(idx, registry, nil, 0, bytes.NewReader(source), parts)

	require.NoError(t, task.repair(context.Background()))
	require.Equal(t, source[0:16], stream.Bytes()[0:16])
	require.Equal(t, source[48:64], stream.Bytes()[16:32])
	require.EqualValues(t, 32, task.progressValue())
}

func TestStreamInstallTask_FailsWithoutRetryOnShortSource(t *testing.T) {
	source := make([]byte, 8)

	b := testutil.NewIndexBuilder()
	b.AddTarget("data.bin", 16).AddSourcePart(0, make([]byte, 16), 0, 0)
	idx := b.Build()

	ledger := NewLedger()
	registry := NewRegistry(idx, ledger)
	require.NoError(t, registry.AttachForRead(0, testutil.NewMemoryStream(make([]byte, 16))))

	parts := []PartRef{{TargetIndex: 0, PartIndex: 0}}
	task := newStreamInstallTask(idx, registry, nil, 0, bytes.NewReader(source), parts)

	err := task.repair(context.Background())
	require.ErrorIs(t, err, ErrTransientIO)
}

func TestStreamInstallTask_CancellationStopsBeforeNextPart(t *testing.T) {
	source := make([]byte, 32)

	b := testutil.NewIndexBuilder()
	b.AddTarget("data.bin", 32).
		AddSourcePart(0, make([]byte, 16), 0, 0).
		AddSourcePart(16, make([]byte, 16), 0, 16)
	idx := b.Build()

	ledger := NewLedger()
	registry := NewRegistry(idx, ledger)
	require.NoError(t, registry.AttachForRead(0, testutil.NewMemoryStream(make([]byte, 32))))

	parts := []PartRef{
		{TargetIndex: 0, PartIndex: 0},
		{TargetIndex: 0, PartIndex: 1},
	}
	task := newStreamInstallTask(idx, registry, nil, 0, bytes.NewReader(source), parts)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := task.repair(ctx)
	require.ErrorIs(t, err, ErrCancelled)
}
