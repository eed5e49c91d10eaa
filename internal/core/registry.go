package core

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// flusher is implemented by *os.File (Sync) and anything else the
// registry may be handed that wants an explicit flush after a write.
type flusher interface {
	Sync() error
}

// Registry is the Target Stream Registry (spec §4.A): it owns one
// read- or read/write-capable random-access byte store per target file,
// plus a per-target mutex serializing writes to that target.
type Registry struct {
	idx    Index
	ledger *Ledger

	mu      sync.Mutex
	streams []io.ReadWriteSeeker
	closers []io.Closer
	locks   []*sync.Mutex
}

// NewRegistry creates a Registry sized for idx's targets. ledger receives
// markFileAsMissing calls from AttachAllForRead when a target file is
// absent on disk.
func NewRegistry(idx Index, ledger *Ledger) *Registry {
	n := idx.TargetCount()
	locks := make([]*sync.Mutex, n)
	for i := range locks {
		locks[i] = &sync.Mutex{}
	}
	return &Registry{
		idx:     idx,
		ledger:  ledger,
		streams: make([]io.ReadWriteSeeker, n),
		closers: make([]io.Closer, n),
		locks:   locks,
	}
}

// AttachForRead stores stream as the handle for targetIndex. stream must
// be readable and seekable; it is rejected with ErrInvalidArgument
// otherwise.
func (r *Registry) AttachForRead(targetIndex int, stream io.ReadWriteSeeker) error {
	if stream == nil {
		return fmt.Errorf("%w: nil stream for target %d", ErrInvalidArgument, targetIndex)
	}
	if _, err := stream.Seek(0, io.SeekCurrent); err != nil {
		return fmt.Errorf("%w: stream for target %d is not seekable: %v", ErrInvalidArgument, targetIndex, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.streams[targetIndex] = stream
	if c, ok := stream.(io.Closer); ok {
		r.closers[targetIndex] = c
	}
	return nil
}

// AttachForWriteFromFile opens (creating if absent) the on-disk file for
// targetIndex under rootPath for read/write, resizes it to the target's
// expected size if it differs, and optionally asks the platform to
// fast-extend the new length (best-effort; a failure here is logged, not
// fatal, per spec §4.A).
func (r *Registry) AttachForWriteFromFile(targetIndex int, rootPath string, useFastExtend bool) error {
	target := r.idx.Target(targetIndex)
	fullPath := filepath.Join(rootPath, target.Path())

	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return fmt.Errorf("create parent directory for %s: %w", fullPath, err)
	}

	f, err := os.OpenFile(fullPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("open %s for write: %w", fullPath, err)
	}

	currentSize, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		f.Close()
		return fmt.Errorf("determine size of %s: %w", fullPath, err)
	}

	expected := target.FileSize()
	if currentSize != expected {
		if err := f.Truncate(expected); err != nil {
			f.Close()
			return fmt.Errorf("resize %s to %d: %w", fullPath, expected, err)
		}
		if useFastExtend {
			if err := fastExtendFile(f, expected); err != nil {
				PushLogWarning(r, fmt.Sprintf("fast-extend unavailable for %s, falling back to slow path: %v", fullPath, err))
			}
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.streams[targetIndex] = f
	r.closers[targetIndex] = f
	return nil
}

// AttachAllForRead disposes all currently attached streams, then attaches
// every target whose file exists on disk for read; targets whose file is
// absent are recorded as entirely missing in the ledger.
func (r *Registry) AttachAllForRead(rootPath string) error {
	r.disposeAllLocked()

	for i := 0; i < r.idx.TargetCount(); i++ {
		target := r.idx.Target(i)
		fullPath := filepath.Join(rootPath, target.Path())

		if _, err := os.Stat(fullPath); err != nil {
			if os.IsNotExist(err) {
				r.ledger.MarkFileMissing(target)
				continue
			}
			return fmt.Errorf("stat %s: %w", fullPath, err)
		}

		f, err := os.Open(fullPath)
		if err != nil {
			return fmt.Errorf("open %s for read: %w", fullPath, err)
		}
		if err := r.AttachForRead(i, f); err != nil {
			f.Close()
			return err
		}
	}
	return nil
}

// AttachMissingForWrite disposes all currently attached streams, attempts
// to acquire the fast-file-extend OS privilege once, then reopens for
// write every target with missing parts or a recorded size mismatch.
func (r *Registry) AttachMissingForWrite(rootPath string) error {
	r.disposeAllLocked()

	useFastExtend := tryAcquireFastExtendPrivilege()

	for i := 0; i < r.idx.TargetCount(); i++ {
		if r.ledger.HasAnyAttention(i) {
			if err := r.AttachForWriteFromFile(i, rootPath, useFastExtend); err != nil {
				return err
			}
		}
	}
	return nil
}

// Stream returns the currently attached handle for targetIndex, or nil if
// none is attached.
func (r *Registry) Stream(targetIndex int) io.ReadWriteSeeker {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.streams[targetIndex]
}

// WriteToTarget writes buf to targetIndex at offset. It is a no-op if no
// stream is attached for targetIndex (spec §4.A). Writes to a single
// target are serialized by that target's lock; the seek+write+flush is
// performed atomically with respect to other writers of the same target.
func (r *Registry) WriteToTarget(targetIndex int, offset int64, buf []byte) error {
	r.mu.Lock()
	stream := r.streams[targetIndex]
	lock := r.locks[targetIndex]
	r.mu.Unlock()

	if stream == nil {
		return nil
	}

	lock.Lock()
	defer lock.Unlock()

	// Bound the write to the target's own [0, FileSize) window so a bad
	// offset from the index can never spill into a neighboring target's
	// region of a shared stream.
	view, err := newChunkStream(stream, 0, r.idx.Target(targetIndex).FileSize())
	if err != nil {
		return fmt.Errorf("bound write view for target %d: %w", targetIndex, err)
	}
	if _, err := view.Seek(offset, io.SeekStart); err != nil {
		return fmt.Errorf("seek target %d to offset %d: %w", targetIndex, offset, err)
	}
	if _, err := view.Write(buf); err != nil {
		return fmt.Errorf("write target %d at offset %d: %w", targetIndex, offset, err)
	}
	if fl, ok := stream.(flusher); ok {
		if err := fl.Sync(); err != nil {
			return fmt.Errorf("flush target %d: %w", targetIndex, err)
		}
	}
	return nil
}

func (r *Registry) disposeAllLocked() {
	r.mu.Lock()
	closers := append([]io.Closer(nil), r.closers...)
	n := len(r.streams)
	r.streams = make([]io.ReadWriteSeeker, n)
	r.closers = make([]io.Closer, n)
	r.mu.Unlock()

	for _, c := range closers {
		if c != nil {
			c.Close()
		}
	}
}

// Close disposes every attached stream. The Registry owns these handles;
// disposing the Installer disposes the Registry (spec §3 Lifecycle).
func (r *Registry) Close() error {
	r.disposeAllLocked()
	return nil
}
