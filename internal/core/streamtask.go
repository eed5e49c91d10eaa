package core

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
)

// countingReader tracks the total number of bytes read from an
// otherwise-opaque forward-only source, so the Stream Install Task can
// tell how far a Part.Reconstruct call actually advanced it.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// streamInstallTask is the Stream Install Task (spec §4.G): repairs the
// parts of a single source patch from a pre-opened local forward-readable
// stream, reconstructing parts directly in ascending sourceOffset order.
type streamInstallTask struct {
	idx       Index
	registry  *Registry
	callbacks *Callbacks

	srcIndex       int
	source         *countingReader
	progressMaxVal int64

	mu       sync.Mutex
	pending  []PartRef
	progress int64
}

// newStreamInstallTask builds a task for sourceIndex reading from source,
// covering parts, sorted ascending by SourceOffset.
func newStreamInstallTask(idx Index, registry *Registry, callbacks *Callbacks, sourceIndex int, source io.Reader, parts []PartRef) *streamInstallTask {
	pending := append([]PartRef(nil), parts...)
	sort.Slice(pending, func(i, j int) bool {
		return partOf(idx, pending[i]).SourceOffset() < partOf(idx, pending[j]).SourceOffset()
	})

	var progressMax int64
	for _, ref := range pending {
		progressMax += partOf(idx, ref).TargetSize()
	}

	return &streamInstallTask{
		idx:            idx,
		registry:       registry,
		callbacks:      callbacks,
		srcIndex:       sourceIndex,
		source:         &countingReader{r: source},
		progressMaxVal: progressMax,
		pending:        pending,
	}
}

func (t *streamInstallTask) sourceIndex() int     { return t.srcIndex }
func (t *streamInstallTask) progressMax() int64   { return t.progressMaxVal }
func (t *streamInstallTask) progressValue() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.progress
}

// repair reads straight through the source stream once, in the sorted
// pending order, skipping any gap between parts. There is no retry here:
// a local stream's errors are not transient in the sense HTTP's are.
func (t *streamInstallTask) repair(ctx context.Context) error {
	pending := t.pendingSnapshot()

	for _, ref := range pending {
		select {
		case <-ctx.Done():
			return ErrCancelled
		default:
		}

		part := partOf(t.idx, ref)

		if gap := part.SourceOffset() - t.source.n; gap > 0 {
			if _, err := io.CopyN(io.Discard, t.source, gap); err != nil {
				return fmt.Errorf("%w: skip to part offset: %v", ErrTransientIO, err)
			}
		} else if gap < 0 {
			return fmt.Errorf("%w: stream install task cannot seek backward", ErrInvalidArgument)
		}

		buf := sharedBufferPool.acquire(int(part.TargetSize()))
		reader, closeReader, err := decompressingReader(t.source, part.MaxSourceEnd()-part.SourceOffset(), t.idx.IsSourceCompressed(t.srcIndex))
		if err != nil {
			buf.Release()
			return fmt.Errorf("%w: open source decoder for target %d part %d: %v", ErrTransientIO, ref.TargetIndex, ref.PartIndex, err)
		}
		err = part.Reconstruct(reader, buf.Bytes())
		closeReader()
		if err != nil {
			buf.Release()
			return fmt.Errorf("%w: reconstruct target %d part %d: %v", ErrTransientIO, ref.TargetIndex, ref.PartIndex, err)
		}

		err = t.registry.WriteToTarget(ref.TargetIndex, part.TargetOffset(), buf.Bytes())
		buf.Release()
		if err != nil {
			return fmt.Errorf("write target %d part %d: %w", ref.TargetIndex, ref.PartIndex, err)
		}

		t.mu.Lock()
		t.progress += part.TargetSize()
		t.pending = t.pending[1:]
		t.mu.Unlock()
	}
	return nil
}

func (t *streamInstallTask) pendingSnapshot() []PartRef {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]PartRef(nil), t.pending...)
}
