package core

import "io"

// VerifyResult is the outcome of a single Part.Verify call.
type VerifyResult int

const (
	VerifyPass VerifyResult = iota
	VerifyFailNotEnoughData
	VerifyFailBadData
	VerifyFailUnverifiable
)

func (r VerifyResult) String() string {
	switch r {
	case VerifyPass:
		return "Pass"
	case VerifyFailNotEnoughData:
		return "FailNotEnoughData"
	case VerifyFailBadData:
		return "FailBadData"
	case VerifyFailUnverifiable:
		return "FailUnverifiable"
	default:
		return "?"
	}
}

// Part is one contiguous byte region of one target file, as described by
// the patch index. The index owns verification and reconstruction: the
// core only ever calls these three methods, never inspects their
// internals. This is the external interface described in spec §3/§6 -
// the installer core borrows it for its lifetime and never mutates it.
type Part interface {
	TargetIndex() int
	PartIndex() int
	TargetOffset() int64
	TargetSize() int64

	// IsFromSourceFile reports whether this part is reconstructed from a
	// source patch's bytes (true) or purely from index-embedded data
	// (false, via ReconstructWithoutSourceData).
	IsFromSourceFile() bool

	// SourceIndex, SourceOffset and MaxSourceEnd are only meaningful when
	// IsFromSourceFile is true. MaxSourceEnd bounds how many source bytes
	// Reconstruct is allowed to read at most.
	SourceIndex() int
	SourceOffset() int64
	MaxSourceEnd() int64

	// Verify checks the part's current on-disk bytes in targetStream
	// against the index's expectation. targetStream is already
	// positioned arbitrarily; Verify must seek as needed.
	Verify(targetStream io.ReadSeeker) (VerifyResult, error)

	// Reconstruct reads exactly the bytes it needs from source at the
	// stream's current position and writes TargetSize() bytes into out.
	// len(out) is guaranteed to be >= TargetSize().
	Reconstruct(source io.Reader, out []byte) error

	// ReconstructWithoutSourceData synthesizes TargetSize() bytes into
	// out without consulting any source patch. Only called when
	// IsFromSourceFile() is false.
	ReconstructWithoutSourceData(out []byte) error
}

// Target is one file the installer repairs or constructs.
type Target interface {
	Path() string
	FileSize() int64
	PartCount() int
	Part(partIndex int) Part
}

// Index is the precomputed, read-only description of target files, their
// parts, and the source patches parts may be reconstructed from. Building
// an Index is out of scope for this package (§1 Non-goals); the installer
// only ever reads from it.
type Index interface {
	TargetCount() int
	Target(targetIndex int) Target

	SourcePatchCount() int

	// GetSourceLastPtr is the exclusive upper bound on byte offsets
	// readable from source patch sourceIndex.
	GetSourceLastPtr(sourceIndex int) int64

	// IsSourceCompressed reports whether sourceIndex's raw bytes are
	// zstd-compressed, one independent frame per part, within the byte
	// range [part.SourceOffset(), part.MaxSourceEnd()).
	IsSourceCompressed(sourceIndex int) bool

	VersionName() string
	VersionFileVer() string
	VersionFileBck() string
}

// Callbacks is the capability set of optional event sinks the installer
// emits into. Any field may be left nil.
type Callbacks struct {
	OnVerifyProgress  func(targetIndex int, bytesDone, bytesTotal int64)
	OnInstallProgress func(sourceIndex int, bytesDone, bytesTotal int64)
	OnCorruptionFound func(part Part, result VerifyResult)
}

func (c *Callbacks) verifyProgress(targetIndex int, bytesDone, bytesTotal int64) {
	if c != nil && c.OnVerifyProgress != nil {
		c.OnVerifyProgress(targetIndex, bytesDone, bytesTotal)
	}
}

func (c *Callbacks) installProgress(sourceIndex int, bytesDone, bytesTotal int64) {
	if c != nil && c.OnInstallProgress != nil {
		c.OnInstallProgress(sourceIndex, bytesDone, bytesTotal)
	}
}

func (c *Callbacks) corruptionFound(part Part, result VerifyResult) {
	if c != nil && c.OnCorruptionFound != nil {
		c.OnCorruptionFound(part, result)
	}
}
