package core

import (
	"context"
	"fmt"
)

// Reconstructor is the Non-Patch Reconstructor (spec §4.D): it repairs
// every currently-missing part that does not need any source patch bytes,
// by asking the index to synthesize the part directly and writing the
// result back through the Registry. Parts that do need source bytes are
// left in the Ledger for the Install Scheduler.
type Reconstructor struct {
	idx      Index
	registry *Registry
	ledger   *Ledger
}

// NewReconstructor builds a Reconstructor over idx/registry/ledger.
func NewReconstructor(idx Index, registry *Registry, ledger *Ledger) *Reconstructor {
	return &Reconstructor{idx: idx, registry: registry, ledger: ledger}
}

// ReconstructNonPatchParts walks every target's missing parts and, for
// each one that is not sourced from a source patch (Part.IsFromSourceFile
// == false), synthesizes it and writes it directly into the target file.
// It returns ErrCancelled as soon as ctx is cancelled.
func (rc *Reconstructor) ReconstructNonPatchParts(ctx context.Context) error {
	for targetIndex := 0; targetIndex < rc.idx.TargetCount(); targetIndex++ {
		target := rc.idx.Target(targetIndex)

		for _, partIndex := range rc.ledger.MissingPartsForTarget(targetIndex) {
			select {
			case <-ctx.Done():
				return ErrCancelled
			default:
			}

			part := target.Part(partIndex)
			if part.IsFromSourceFile() {
				continue
			}

			if err := rc.reconstructOne(targetIndex, part); err != nil {
				return err
			}
		}
	}
	return nil
}

func (rc *Reconstructor) reconstructOne(targetIndex int, part Part) error {
	size := part.TargetSize()
	if size < 0 {
		return fmt.Errorf("%w: target %d part %d has negative size", ErrInvariantViolated, targetIndex, part.PartIndex())
	}

	buf := sharedBufferPool.acquire(int(size))
	defer buf.Release()

	if err := part.ReconstructWithoutSourceData(buf.Bytes()); err != nil {
		return fmt.Errorf("reconstruct target %d part %d without source data: %w", targetIndex, part.PartIndex(), err)
	}

	if err := rc.registry.WriteToTarget(targetIndex, part.TargetOffset(), buf.Bytes()); err != nil {
		return fmt.Errorf("write target %d part %d: %w", targetIndex, part.PartIndex(), err)
	}
	return nil
}
