package core

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"
)

// DefaultInstallSplit is the default splitBy for QueueHTTPInstallSplit.
const DefaultInstallSplit = 8

// DefaultInstallConcurrency is used when Install is called with a
// non-positive concurrency; the caller is expected to choose one
// deliberately (spec §5), this only guards against a zero value.
const DefaultInstallConcurrency = 4

// Scheduler is the Install Scheduler (spec §4.H): it queues install tasks
// for later, bounded-concurrency execution, aggregates their progress,
// and finishes every Install call with a Non-Patch Reconstructor pass.
type Scheduler struct {
	idx           Index
	registry      *Registry
	ledger        *Ledger
	callbacks     *Callbacks
	reconstructor *Reconstructor

	mu    sync.Mutex
	queue []installTask
}

// NewScheduler builds a Scheduler over idx/registry/ledger, emitting into
// callbacks (which may be nil).
func NewScheduler(idx Index, registry *Registry, ledger *Ledger, callbacks *Callbacks) *Scheduler {
	return &Scheduler{
		idx:           idx,
		registry:      registry,
		ledger:        ledger,
		callbacks:     callbacks,
		reconstructor: NewReconstructor(idx, registry, ledger),
	}
}

// QueueHTTPInstall queues a single HTTP Install Task for sourceIndex,
// fetching from sourceURL via client, covering exactly targetPartIndices.
func (s *Scheduler) QueueHTTPInstall(client *http.Client, sourceIndex int, sourceURL, sid string, targetPartIndices []PartRef) {
	task := newHTTPInstallTask(s.idx, s.registry, s.callbacks, client, sourceIndex, sourceURL, sid, targetPartIndices)
	s.mu.Lock()
	s.queue = append(s.queue, task)
	s.mu.Unlock()
}

// QueueStreamInstall queues a single Stream Install Task for sourceIndex,
// reading sequentially from source, covering exactly targetPartIndices.
func (s *Scheduler) QueueStreamInstall(sourceIndex int, source io.Reader, targetPartIndices []PartRef) {
	task := newStreamInstallTask(s.idx, s.registry, s.callbacks, sourceIndex, source, targetPartIndices)
	s.mu.Lock()
	s.queue = append(s.queue, task)
	s.mu.Unlock()
}

// QueueHTTPInstallSplit divides every currently-missing part of
// sourceIndex (per the Ledger) into splitBy (0 selects
// DefaultInstallSplit) roughly equal chunks, by ceiling division, and
// queues one HTTP Install Task per non-empty chunk (spec §4.H). Splitting
// is only offered for HTTP tasks: a Stream task owns a single sequential
// reader, so dividing its work across concurrent tasks would require
// distinct stream instances and is left to the caller.
func (s *Scheduler) QueueHTTPInstallSplit(client *http.Client, sourceIndex int, sourceURL, sid string, splitBy int) {
	if splitBy <= 0 {
		splitBy = DefaultInstallSplit
	}
	all := s.ledger.MissingPartsForPatch(sourceIndex)
	for _, chunk := range splitIntoChunks(all, splitBy) {
		if len(chunk) == 0 {
			continue
		}
		s.QueueHTTPInstall(client, sourceIndex, sourceURL, sid, chunk)
	}
}

func splitIntoChunks(items []PartRef, splitBy int) [][]PartRef {
	if len(items) == 0 {
		return nil
	}
	chunkSize := (len(items) + splitBy - 1) / splitBy
	if chunkSize == 0 {
		chunkSize = 1
	}
	out := make([][]PartRef, 0, splitBy)
	for i := 0; i < len(items); i += chunkSize {
		end := i + chunkSize
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[i:end])
	}
	return out
}

// Install drains the queue with up to concurrency tasks running at once
// (0 or negative selects DefaultInstallConcurrency), then finishes with a
// Non-Patch Reconstructor pass - also when no tasks were queued (spec
// §4.H step 1). It returns ErrCancelled if ctx is cancelled, or the first
// task's error otherwise; in either of those cases the Non-Patch
// Reconstructor pass is not run.
func (s *Scheduler) Install(ctx context.Context, concurrency int) error {
	s.mu.Lock()
	tasks := s.queue
	s.queue = nil
	s.mu.Unlock()

	if len(tasks) == 0 {
		return s.reconstructor.ReconstructNonPatchParts(ctx)
	}
	if concurrency <= 0 {
		concurrency = DefaultInstallConcurrency
	}

	var progressMax int64
	for _, t := range tasks {
		progressMax += t.progressMax()
	}

	derivedCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	stopProgress := make(chan struct{})
	progressDone := make(chan struct{})
	go s.runProgressTicker(derivedCtx, tasks, progressMax, stopProgress, progressDone)

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

launchLoop:
	for _, task := range tasks {
		select {
		case <-derivedCtx.Done():
			break launchLoop
		case sem <- struct{}{}:
			wg.Add(1)
			go func(tk installTask) {
				defer wg.Done()
				defer func() { <-sem }()
				if err := tk.repair(derivedCtx); err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
					cancel()
				}
			}(task)
		}
	}

	wg.Wait()
	close(stopProgress)
	<-progressDone

	// The finally clause (spec §4.H step 5): still-running tasks have
	// already been asked to cancel above and awaited by wg.Wait(); their
	// errors are suppressed in favor of firstErr/ctx.Err().
	if ctx.Err() != nil {
		return ErrCancelled
	}
	if firstErr != nil {
		return firstErr
	}

	return s.reconstructor.ReconstructNonPatchParts(ctx)
}

func (s *Scheduler) runProgressTicker(ctx context.Context, tasks []installTask, progressMax int64, stop <-chan struct{}, done chan<- struct{}) {
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
			var sum int64
			currentSource := 0
			for _, t := range tasks {
				sum += t.progressValue()
				currentSource = t.sourceIndex()
			}
			s.callbacks.installProgress(currentSource, sum, progressMax)
		}
	}
}
