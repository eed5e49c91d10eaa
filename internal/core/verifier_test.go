package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/patchkit/corepatch/internal/core/testutil"
)

func TestVerifier_PassesOnCorrectContent(t *testing.T) {
	content := []byte("0123456789ABCDEF")
	b := testutil.NewIndexBuilder()
	b.AddTarget("data.bin", 16).AddEmbeddedPart(0, content)
	idx := b.Build()

	ledger := NewLedger()
	registry := NewRegistry(idx, ledger)
	require.NoError(t, registry.AttachForRead(0, testutil.NewMemoryStream(content)))

	verifier := NewVerifier(idx, registry, ledger, nil)
	require.NoError(t, verifier.VerifyFiles(context.Background(), 0))
	require.True(t, ledger.IsEmpty())
}

func TestVerifier_FlagsCorruptedPartAsMissing(t *testing.T) {
	expected := []byte("0123456789ABCDEF")
	onDisk := []byte("XXXXXXXXXXXXXXXX")

	b := testutil.NewIndexBuilder()
	b.AddTarget("data.bin", 16).AddEmbeddedPart(0, expected)
	idx := b.Build()

	ledger := NewLedger()
	registry := NewRegistry(idx, ledger)
	require.NoError(t, registry.AttachForRead(0, testutil.NewMemoryStream(onDisk)))

	var corrupted []VerifyResult
	callbacks := &Callbacks{OnCorruptionFound: func(part Part, result VerifyResult) {
		corrupted = append(corrupted, result)
	}}

	verifier := NewVerifier(idx, registry, ledger, callbacks)
	require.NoError(t, verifier.VerifyFiles(context.Background(), 0))

	require.Equal(t, []int{0}, ledger.MissingPartsForTarget(0))
	require.Equal(t, []VerifyResult{VerifyFailBadData}, corrupted)
}

func TestVerifier_FlagsShortFileAsNotEnoughData(t *testing.T) {
	expected := make([]byte, 16)
	b := testutil.NewIndexBuilder()
	b.AddTarget("data.bin", 16).AddEmbeddedPart(0, expected)
	idx := b.Build()

	ledger := NewLedger()
	registry := NewRegistry(idx, ledger)
	require.NoError(t, registry.AttachForRead(0, testutil.NewMemoryStream(make([]byte, 4))))

	var results []VerifyResult
	callbacks := &Callbacks{OnCorruptionFound: func(part Part, result VerifyResult) {
		results = append(results, result)
	}}

	verifier := NewVerifier(idx, registry, ledger, callbacks)
	require.NoError(t, verifier.VerifyFiles(context.Background(), 0))
	require.Equal(t, []int{0}, ledger.MissingPartsForTarget(0))
	require.Equal(t, []VerifyResult{VerifyFailNotEnoughData}, results)
}

func TestVerifier_DetectsSizeMismatch(t *testing.T) {
	b := testutil.NewIndexBuilder()
	b.AddTarget("data.bin", 1024).AddEmbeddedPart(0, make([]byte, 1024))
	idx := b.Build()

	ledger := NewLedger()
	registry := NewRegistry(idx, ledger)
	require.NoError(t, registry.AttachForRead(0, testutil.NewMemoryStream(make([]byte, 1000))))

	verifier := NewVerifier(idx, registry, ledger, nil)
	require.NoError(t, verifier.VerifyFiles(context.Background(), 0))
	require.Equal(t, []int{0}, ledger.SizeMismatchTargets())
}

func TestVerifier_CancellationStopsEarly(t *testing.T) {
	b := testutil.NewIndexBuilder()
	for i := 0; i < 20; i++ {
		b.AddTarget("data.bin", 8).AddEmbeddedPart(0, make([]byte, 8))
	}
	idx := b.Build()

	ledger := NewLedger()
	registry := NewRegistry(idx, ledger)
	for i := 0; i < idx.TargetCount(); i++ {
		require.NoError(t, registry.AttachForRead(i, testutil.NewMemoryStream(make([]byte, 8))))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	verifier := NewVerifier(idx, registry, ledger, nil)
	err := verifier.VerifyFiles(ctx, 4)
	require.ErrorIs(t, err, ErrCancelled)
}
