package core

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// DefaultVerifyConcurrency is the default number of targets verified in
// parallel (spec §4.C).
const DefaultVerifyConcurrency = 8

// ProgressReportInterval is how often a progress timer fires during
// verification and installation (spec §4.C / §4.H).
const ProgressReportInterval = 250 * time.Millisecond

// Verifier is the Verifier component (spec §4.C): concurrent, chunked
// integrity checking of existing target files against the index,
// populating the Ledger and emitting progress/corruption events.
type Verifier struct {
	idx       Index
	registry  *Registry
	ledger    *Ledger
	callbacks *Callbacks

	mu                 sync.Mutex
	progressCounter    int64
	currentTargetIndex int
}

// NewVerifier builds a Verifier over idx/registry/ledger, emitting into
// callbacks (which may be nil).
func NewVerifier(idx Index, registry *Registry, ledger *Ledger, callbacks *Callbacks) *Verifier {
	return &Verifier{idx: idx, registry: registry, ledger: ledger, callbacks: callbacks}
}

// VerifyFiles runs up to concurrency per-target verification tasks in
// parallel (0 or negative selects DefaultVerifyConcurrency). It returns
// ErrCancelled if ctx is cancelled, or wraps ErrInvariantViolated if the
// index reports a part it promised was verifiable but is not.
func (v *Verifier) VerifyFiles(ctx context.Context, concurrency int) error {
	if concurrency <= 0 {
		concurrency = DefaultVerifyConcurrency
	}

	var indices []int
	var total int64
	for i := 0; i < v.idx.TargetCount(); i++ {
		if v.registry.Stream(i) != nil {
			indices = append(indices, i)
			total += v.idx.Target(i).FileSize()
		}
	}

	derivedCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	stopProgress := make(chan struct{})
	progressDone := make(chan struct{})
	go v.runProgressTicker(derivedCtx, total, stopProgress, progressDone)

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	errCh := make(chan error, len(indices))

launchLoop:
	for _, ti := range indices {
		select {
		case <-derivedCtx.Done():
			break launchLoop
		case sem <- struct{}{}:
			wg.Add(1)
			go func(targetIndex int) {
				defer wg.Done()
				defer func() { <-sem }()
				if err := v.verifyTarget(derivedCtx, targetIndex); err != nil {
					select {
					case errCh <- err:
					default:
					}
					cancel()
				}
			}(ti)
		}
	}

	wg.Wait()
	close(stopProgress)
	<-progressDone
	close(errCh)

	// Cancellation takes priority and suppresses errors from awaited
	// in-flight tasks, per spec §5 cancellation semantics.
	if ctx.Err() != nil {
		return ErrCancelled
	}
	for err := range errCh {
		if err != nil {
			return err
		}
	}
	return nil
}

func (v *Verifier) verifyTarget(ctx context.Context, targetIndex int) error {
	target := v.idx.Target(targetIndex)
	stream := v.registry.Stream(targetIndex)
	if stream == nil {
		return nil
	}

	length, err := stream.Seek(0, io.SeekEnd)
	if err != nil {
		return fmt.Errorf("determine size of target %d: %w", targetIndex, err)
	}
	if length != target.FileSize() {
		v.ledger.MarkSizeMismatch(targetIndex)
	}

	for j := 0; j < target.PartCount(); j++ {
		select {
		case <-ctx.Done():
			return ErrCancelled
		default:
		}

		part := target.Part(j)
		result, err := part.Verify(stream)
		if err != nil {
			return fmt.Errorf("verify target %d part %d: %w", targetIndex, j, err)
		}

		switch result {
		case VerifyPass:
			// nothing to do
		case VerifyFailUnverifiable:
			return fmt.Errorf("target %d part %d: %w", targetIndex, j, ErrInvariantViolated)
		case VerifyFailNotEnoughData, VerifyFailBadData:
			v.ledger.MarkPartMissing(part)
			v.callbacks.corruptionFound(part, result)
		default:
			return fmt.Errorf("target %d part %d: unrecognized verify result %v", targetIndex, j, result)
		}

		v.recordProgress(targetIndex, part.TargetSize())
	}
	return nil
}

func (v *Verifier) recordProgress(targetIndex int, delta int64) {
	v.mu.Lock()
	v.progressCounter += delta
	v.currentTargetIndex = targetIndex
	v.mu.Unlock()
}

func (v *Verifier) runProgressTicker(ctx context.Context, total int64, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(ProgressReportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			v.mu.Lock()
			counter, cur := v.progressCounter, v.currentTargetIndex
			v.mu.Unlock()
			v.callbacks.verifyProgress(cur, counter, total)
		}
	}
}
