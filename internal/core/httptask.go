package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
)

// patcherUserAgent is the fixed User-Agent sent with every ranged GET,
// mirroring the teacher's convention of a single static identifier for
// all chunk requests.
const patcherUserAgent = "patchkit-corepatch/1"

// coalesceGapThreshold is the maximum gap, in bytes, between two source
// ranges that still get merged into one request (spec §4.F step 3).
const coalesceGapThreshold = 1024

// maxRangesPerRequest caps how many ranges one GET lists; anything past
// this is dropped and picked up by a later outer attempt (spec §4.F).
const maxRangesPerRequest = 1024

type byteRange struct {
	start int64
	end   int64 // exclusive
}

// httpInstallTask is the HTTP Install Task (spec §4.F): repairs the parts
// of a single source patch by issuing coalesced ranged GETs and consuming
// the multipart/byteranges response.
type httpInstallTask struct {
	idx       Index
	registry  *Registry
	callbacks *Callbacks
	client    *http.Client

	srcIndex  int
	sourceURL string
	sid       string

	progressMaxVal int64

	mu        sync.Mutex
	pending   []PartRef
	completed []PartRef
	progress  int64

	curReader *multipartRangeReader
}

// newHTTPInstallTask builds a task for sourceIndex, fetching from
// sourceURL (with optional session id sid), covering parts. parts is
// sorted ascending by SourceOffset per spec §4.F construction.
func newHTTPInstallTask(idx Index, registry *Registry, callbacks *Callbacks, client *http.Client, sourceIndex int, sourceURL, sid string, parts []PartRef) *httpInstallTask {
	pending := append([]PartRef(nil), parts...)
	sort.Slice(pending, func(i, j int) bool {
		return partOf(idx, pending[i]).SourceOffset() < partOf(idx, pending[j]).SourceOffset()
	})

	var progressMax int64
	for _, ref := range pending {
		progressMax += partOf(idx, ref).TargetSize()
	}

	return &httpInstallTask{
		idx:            idx,
		registry:       registry,
		callbacks:      callbacks,
		client:         client,
		srcIndex:       sourceIndex,
		sourceURL:      sourceURL,
		sid:            sid,
		progressMaxVal: progressMax,
		pending:        pending,
	}
}

func partOf(idx Index, ref PartRef) Part {
	return idx.Target(ref.TargetIndex).Part(ref.PartIndex)
}

func (t *httpInstallTask) sourceIndex() int { return t.srcIndex }

func (t *httpInstallTask) progressMax() int64 { return t.progressMaxVal }

func (t *httpInstallTask) progressValue() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.progress
}

// repair performs at most maxOuterAttempts outer attempts, per spec
// §4.F: each attempt backs off if needed, fetches the next stream (either
// the next part of an open multipart response, or a fresh coalesced
// request), and drains every pending part it now covers.
func (t *httpInstallTask) repair(ctx context.Context) error {
	defer t.closeCurrentReader()

	failedCount := 0
	var lastErr error

outerLoop:
	for attempt := 0; attempt < maxOuterAttempts; attempt++ {
		if err := sleepOrCancel(ctx, backoffDelay(failedCount)); err != nil {
			return err
		}

		stream, err := t.getNextStream(ctx)
		if err != nil {
			if errors.Is(err, ErrCancelled) {
				return err
			}
			lastErr = err
			failedCount++
			continue
		}

		for {
			select {
			case <-ctx.Done():
				return ErrCancelled
			default:
			}

			ref, ok := t.peekFirstPending()
			if !ok {
				return nil
			}
			if partOf(t.idx, ref).SourceOffset() >= stream.AvailableToOffset() {
				break
			}

			if err := t.consumePart(ref, stream); err != nil {
				lastErr = err
				failedCount++
				continue outerLoop
			}
			failedCount = 0
			t.markCompleted(ref)
		}
	}

	if lastErr == nil {
		return fmt.Errorf("%w: source patch %d", ErrExhaustedRetries, t.srcIndex)
	}
	return fmt.Errorf("%w: source patch %d: %w", ErrExhaustedRetries, t.srcIndex, lastErr)
}

func (t *httpInstallTask) consumePart(ref PartRef, stream *ForwardSeekStream) error {
	part := partOf(t.idx, ref)

	if err := stream.SkipTo(part.SourceOffset()); err != nil {
		return fmt.Errorf("%w: align stream to part offset: %v", ErrTransientIO, err)
	}

	buf := sharedBufferPool.acquire(int(part.TargetSize()))
	defer buf.Release()

	reader, closeReader, err := decompressingReader(stream, part.MaxSourceEnd()-part.SourceOffset(), t.idx.IsSourceCompressed(t.srcIndex))
	if err != nil {
		return fmt.Errorf("%w: open source decoder for target %d part %d: %v", ErrTransientIO, ref.TargetIndex, ref.PartIndex, err)
	}
	defer closeReader()

	if err := part.Reconstruct(reader, buf.Bytes()); err != nil {
		return fmt.Errorf("%w: reconstruct target %d part %d: %v", ErrTransientIO, ref.TargetIndex, ref.PartIndex, err)
	}
	if err := t.registry.WriteToTarget(ref.TargetIndex, part.TargetOffset(), buf.Bytes()); err != nil {
		return fmt.Errorf("write target %d part %d: %w", ref.TargetIndex, ref.PartIndex, err)
	}

	t.mu.Lock()
	t.progress += part.TargetSize()
	t.mu.Unlock()

	return nil
}

// getNextStream returns the next part of an already-open multipart
// response if one exists, otherwise issues a fresh coalesced ranged GET
// and returns its first part (spec §4.F "getNextStream").
func (t *httpInstallTask) getNextStream(ctx context.Context) (*ForwardSeekStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, ErrCancelled
	}

	if t.curReader != nil {
		part, err := t.curReader.nextPart(ctx)
		if err != nil {
			t.closeCurrentReader()
			return nil, err
		}
		if part != nil {
			return part, nil
		}
		t.closeCurrentReader()
	}

	pending := t.pendingSnapshot()
	if len(pending) == 0 {
		return nil, fmt.Errorf("no pending parts to fetch")
	}

	ranges := coalesceRanges(t.buildRanges(pending))
	if len(ranges) > maxRangesPerRequest {
		ranges = ranges[:maxRangesPerRequest]
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.sourceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build range request: %v", ErrTransientIO, err)
	}
	req.Header.Set("Range", formatRangeHeader(ranges))
	req.Header.Set("User-Agent", patcherUserAgent)
	req.Header.Set("Connection", "Keep-Alive")
	if t.sid != "" {
		req.Header.Set("X-Patch-Unique-Id", t.sid)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransientIO, err)
	}
	if resp.StatusCode != http.StatusPartialContent {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: unexpected status %s from %s", ErrTransientIO, resp.Status, t.sourceURL)
	}

	reader, err := newMultipartRangeReader(resp)
	if err != nil {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %v", ErrTransientIO, err)
	}
	t.curReader = reader

	part, err := reader.nextPart(ctx)
	if err != nil {
		t.closeCurrentReader()
		return nil, err
	}
	if part == nil {
		t.closeCurrentReader()
		return nil, fmt.Errorf("%w: empty response body for source %d", ErrUnexpectedEndOfStream, t.srcIndex)
	}
	return part, nil
}

func (t *httpInstallTask) closeCurrentReader() {
	if t.curReader != nil {
		t.curReader.Close()
		t.curReader = nil
	}
}

func (t *httpInstallTask) buildRanges(pending []PartRef) []byteRange {
	last := t.idx.GetSourceLastPtr(t.srcIndex)
	ranges := make([]byteRange, 0, len(pending))
	for _, ref := range pending {
		part := partOf(t.idx, ref)
		end := part.MaxSourceEnd()
		if last < end {
			end = last
		}
		ranges = append(ranges, byteRange{start: part.SourceOffset(), end: end})
	}
	return ranges
}

// coalesceRanges sorts ranges ascending and merges any pair whose gap is
// smaller than coalesceGapThreshold (spec §4.F step 3 / §8 property 5).
func coalesceRanges(ranges []byteRange) []byteRange {
	if len(ranges) == 0 {
		return ranges
	}
	sort.Slice(ranges, func(i, j int) bool { return ranges[i].start < ranges[j].start })

	out := make([]byteRange, 0, len(ranges))
	out = append(out, ranges[0])
	for _, r := range ranges[1:] {
		last := &out[len(out)-1]
		if r.start-last.end < coalesceGapThreshold {
			if r.end > last.end {
				last.end = r.end
			}
			continue
		}
		out = append(out, r)
	}
	return out
}

func formatRangeHeader(ranges []byteRange) string {
	parts := make([]string, len(ranges))
	for i, r := range ranges {
		parts[i] = fmt.Sprintf("%d-%d", r.start, r.end-1)
	}
	return "bytes=" + strings.Join(parts, ", ")
}

func (t *httpInstallTask) peekFirstPending() (PartRef, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.pending) == 0 {
		return PartRef{}, false
	}
	return t.pending[0], true
}

func (t *httpInstallTask) pendingSnapshot() []PartRef {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]PartRef(nil), t.pending...)
}

func (t *httpInstallTask) markCompleted(ref PartRef) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.pending) > 0 && t.pending[0] == ref {
		t.pending = t.pending[1:]
	}
	t.completed = append(t.completed, ref)
}
