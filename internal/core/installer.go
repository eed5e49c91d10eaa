package core

import "context"

// Installer is the top-level installer state (spec §3 "Installer State"):
// it owns the Target Stream Registry, Missing-Parts Ledger, Verifier and
// Install Scheduler for one Index/local-root pair, and exposes the three
// entry points a caller drives: VerifyFiles, Install, and Close.
type Installer struct {
	idx      Index
	rootPath string

	registry  *Registry
	ledger    *Ledger
	verifier  *Verifier
	scheduler *Scheduler
}

// NewInstaller builds an Installer over idx, rooted at rootPath on disk,
// emitting events into callbacks (which may be nil).
func NewInstaller(idx Index, rootPath string, callbacks *Callbacks) *Installer {
	ledger := NewLedger()
	registry := NewRegistry(idx, ledger)
	return &Installer{
		idx:       idx,
		rootPath:  rootPath,
		registry:  registry,
		ledger:    ledger,
		verifier:  NewVerifier(idx, registry, ledger, callbacks),
		scheduler: NewScheduler(idx, registry, ledger, callbacks),
	}
}

// Ledger exposes the installer's Missing-Parts Ledger, e.g. so a caller
// can decide what to queue via Scheduler after VerifyFiles.
func (in *Installer) Ledger() *Ledger { return in.ledger }

// Registry exposes the installer's Target Stream Registry.
func (in *Installer) Registry() *Registry { return in.registry }

// Scheduler exposes the installer's Install Scheduler, so a caller can
// queue HTTP or Stream install tasks before calling Install.
func (in *Installer) Scheduler() *Scheduler { return in.scheduler }

// VerifyFiles resets the ledger, (re)attaches every existing target file
// for read, and verifies them with the given concurrency (0 selects
// DefaultVerifyConcurrency). Resetting first is what makes repeated
// verify/install cycles idempotent (spec §8 property 2).
func (in *Installer) VerifyFiles(ctx context.Context, concurrency int) error {
	in.ledger.Reset()
	if err := in.registry.AttachAllForRead(in.rootPath); err != nil {
		return err
	}
	return in.verifier.VerifyFiles(ctx, concurrency)
}

// PrepareForInstall reopens for write every target with missing parts or
// a recorded size mismatch (spec §4.A attachMissingForWrite). Call this
// after VerifyFiles and before queuing any install task.
func (in *Installer) PrepareForInstall() error {
	return in.registry.AttachMissingForWrite(in.rootPath)
}

// Install drains the Scheduler's queue with up to concurrency tasks
// running at once, then finishes with a Non-Patch Reconstructor pass
// unless a task failed or ctx was cancelled.
func (in *Installer) Install(ctx context.Context, concurrency int) error {
	return in.scheduler.Install(ctx, concurrency)
}

// WriteVersionFiles writes the index's version sidecar files under the
// installer's root.
func (in *Installer) WriteVersionFiles() error {
	return WriteVersionFiles(in.idx, in.rootPath)
}

// Run is the common verify-then-install cycle: VerifyFiles,
// PrepareForInstall, Install, then WriteVersionFiles.
func (in *Installer) Run(ctx context.Context, verifyConcurrency, installConcurrency int) error {
	if err := in.VerifyFiles(ctx, verifyConcurrency); err != nil {
		return err
	}
	if err := in.PrepareForInstall(); err != nil {
		return err
	}
	if err := in.Install(ctx, installConcurrency); err != nil {
		return err
	}
	return in.WriteVersionFiles()
}

// Close disposes every target stream the installer owns (spec §3
// Lifecycle: disposing the installer disposes all of them).
func (in *Installer) Close() error {
	return in.registry.Close()
}
