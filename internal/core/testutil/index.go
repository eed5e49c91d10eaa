// Package testutil provides a minimal, fully in-memory Index
// implementation for exercising internal/core without a real patch
// index or network. Parts are hashed with xxhash (the same library the
// teacher used for chunk verification), and Reconstruct here is
// deliberately trivial - a straight byte copy - since decoding real
// patch payloads is outside this package's concern.
package testutil

import (
	"bytes"
	"fmt"
	"io"

	"github.com/cespare/xxhash/v2"

	"github.com/patchkit/corepatch/internal/core"
)

// FakePart is a test double implementing core.Part.
type FakePart struct {
	targetIndex int
	partIndex   int

	targetOffset int64
	expected     []byte

	fromSource   bool
	sourceIndex  int
	sourceOffset int64
	maxSourceEnd int64
}

func (p *FakePart) TargetIndex() int  { return p.targetIndex }
func (p *FakePart) PartIndex() int    { return p.partIndex }
func (p *FakePart) TargetOffset() int64 { return p.targetOffset }
func (p *FakePart) TargetSize() int64   { return int64(len(p.expected)) }

func (p *FakePart) IsFromSourceFile() bool { return p.fromSource }
func (p *FakePart) SourceIndex() int       { return p.sourceIndex }
func (p *FakePart) SourceOffset() int64    { return p.sourceOffset }
func (p *FakePart) MaxSourceEnd() int64    { return p.maxSourceEnd }

// Verify reads TargetSize() bytes at TargetOffset() from targetStream and
// compares their xxhash against the expected content's.
func (p *FakePart) Verify(targetStream io.ReadSeeker) (core.VerifyResult, error) {
	if _, err := targetStream.Seek(p.targetOffset, io.SeekStart); err != nil {
		return core.VerifyFailUnverifiable, fmt.Errorf("seek to part offset: %w", err)
	}

	buf := make([]byte, len(p.expected))
	n, err := io.ReadFull(targetStream, buf)
	if err == io.ErrUnexpectedEOF || err == io.EOF {
		return core.VerifyFailNotEnoughData, nil
	}
	if err != nil {
		return core.VerifyFailUnverifiable, fmt.Errorf("read part bytes: %w", err)
	}

	if xxhash.Sum64(buf[:n]) != xxhash.Sum64(p.expected) {
		return core.VerifyFailBadData, nil
	}
	return core.VerifyPass, nil
}

// Reconstruct reads exactly TargetSize() bytes from source into out. The
// fake source streams carry the correct content directly, so no real
// diff-decoding happens here.
func (p *FakePart) Reconstruct(source io.Reader, out []byte) error {
	_, err := io.ReadFull(source, out[:len(p.expected)])
	return err
}

// ReconstructWithoutSourceData copies the part's expected content into
// out directly.
func (p *FakePart) ReconstructWithoutSourceData(out []byte) error {
	copy(out, p.expected)
	return nil
}

// FakeTarget is a test double implementing core.Target.
type FakeTarget struct {
	path     string
	fileSize int64
	parts    []*FakePart
}

func (t *FakeTarget) Path() string     { return t.path }
func (t *FakeTarget) FileSize() int64  { return t.fileSize }
func (t *FakeTarget) PartCount() int   { return len(t.parts) }
func (t *FakeTarget) Part(i int) core.Part { return t.parts[i] }

// FakeIndex is a test double implementing core.Index.
type FakeIndex struct {
	targets         []*FakeTarget
	sourcePatchCnt  int
	sourceLastPtr   map[int]int64
	sourceCompressed map[int]bool
	versionName     string
	versionFileVer  string
	versionFileBck  string
}

func (idx *FakeIndex) TargetCount() int          { return len(idx.targets) }
func (idx *FakeIndex) Target(i int) core.Target  { return idx.targets[i] }
func (idx *FakeIndex) SourcePatchCount() int     { return idx.sourcePatchCnt }

func (idx *FakeIndex) GetSourceLastPtr(sourceIndex int) int64 {
	if v, ok := idx.sourceLastPtr[sourceIndex]; ok {
		return v
	}
	return 1 << 62
}

func (idx *FakeIndex) IsSourceCompressed(sourceIndex int) bool {
	return idx.sourceCompressed[sourceIndex]
}

func (idx *FakeIndex) VersionName() string    { return idx.versionName }
func (idx *FakeIndex) VersionFileVer() string { return idx.versionFileVer }
func (idx *FakeIndex) VersionFileBck() string { return idx.versionFileBck }

// IndexBuilder assembles a FakeIndex one target/part at a time.
type IndexBuilder struct {
	idx *FakeIndex
}

// NewIndexBuilder starts a builder with sensible version-file defaults.
func NewIndexBuilder() *IndexBuilder {
	return &IndexBuilder{idx: &FakeIndex{
		versionName:      "1.0.0",
		versionFileVer:   "version.txt",
		versionFileBck:   "version.bck",
		sourceLastPtr:    make(map[int]int64),
		sourceCompressed: make(map[int]bool),
	}}
}

// SetSourceCompressed marks sourceIndex's raw bytes as zstd-compressed,
// one frame per part.
func (b *IndexBuilder) SetSourceCompressed(sourceIndex int, compressed bool) *IndexBuilder {
	b.idx.sourceCompressed[sourceIndex] = compressed
	return b
}

// WithVersion overrides the default version name and sidecar file names.
func (b *IndexBuilder) WithVersion(name, verFile, bckFile string) *IndexBuilder {
	b.idx.versionName = name
	b.idx.versionFileVer = verFile
	b.idx.versionFileBck = bckFile
	return b
}

// SetSourceLastPtr records the exclusive upper bound readable from
// sourceIndex; if never set, GetSourceLastPtr returns a very large value.
func (b *IndexBuilder) SetSourceLastPtr(sourceIndex int, lastPtr int64) *IndexBuilder {
	b.idx.sourceLastPtr[sourceIndex] = lastPtr
	return b
}

// AddTarget appends a new target file of the given path and size, and
// returns a TargetBuilder to add its parts.
func (b *IndexBuilder) AddTarget(path string, fileSize int64) *TargetBuilder {
	t := &FakeTarget{path: path, fileSize: fileSize}
	b.idx.targets = append(b.idx.targets, t)
	return &TargetBuilder{index: b.idx, target: t, targetIndex: len(b.idx.targets) - 1}
}

// Build returns the assembled index.
func (b *IndexBuilder) Build() *FakeIndex { return b.idx }

// TargetBuilder adds parts to one target.
type TargetBuilder struct {
	index       *FakeIndex
	target      *FakeTarget
	targetIndex int
}

// AddSourcePart appends a part reconstructed from sourceIndex's bytes at
// [sourceOffset, sourceOffset+len(content)), whose decoded content must
// equal content.
func (tb *TargetBuilder) AddSourcePart(targetOffset int64, content []byte, sourceIndex int, sourceOffset int64) *TargetBuilder {
	p := &FakePart{
		targetIndex:  tb.targetIndex,
		partIndex:    len(tb.target.parts),
		targetOffset: targetOffset,
		expected:     append([]byte(nil), content...),
		fromSource:   true,
		sourceIndex:  sourceIndex,
		sourceOffset: sourceOffset,
		maxSourceEnd: sourceOffset + int64(len(content)),
	}
	tb.target.parts = append(tb.target.parts, p)
	if tb.index.sourcePatchCnt <= sourceIndex {
		tb.index.sourcePatchCnt = sourceIndex + 1
	}
	return tb
}

// AddCompressedSourcePart appends a source part whose raw bytes are
// compressedLen bytes at [sourceOffset, sourceOffset+compressedLen) - use
// this instead of AddSourcePart when the source patch is marked
// compressed via SetSourceCompressed, since the raw (compressed) span
// generally differs in length from the decompressed content.
func (tb *TargetBuilder) AddCompressedSourcePart(targetOffset int64, decompressedContent []byte, sourceIndex int, sourceOffset, compressedLen int64) *TargetBuilder {
	p := &FakePart{
		targetIndex:  tb.targetIndex,
		partIndex:    len(tb.target.parts),
		targetOffset: targetOffset,
		expected:     append([]byte(nil), decompressedContent...),
		fromSource:   true,
		sourceIndex:  sourceIndex,
		sourceOffset: sourceOffset,
		maxSourceEnd: sourceOffset + compressedLen,
	}
	tb.target.parts = append(tb.target.parts, p)
	if tb.index.sourcePatchCnt <= sourceIndex {
		tb.index.sourcePatchCnt = sourceIndex + 1
	}
	return tb
}

// AddEmbeddedPart appends a part synthesized directly from the index,
// with no source patch involved.
func (tb *TargetBuilder) AddEmbeddedPart(targetOffset int64, content []byte) *TargetBuilder {
	p := &FakePart{
		targetIndex:  tb.targetIndex,
		partIndex:    len(tb.target.parts),
		targetOffset: targetOffset,
		expected:     append([]byte(nil), content...),
	}
	tb.target.parts = append(tb.target.parts, p)
	return tb
}

// ExpectedContent concatenates every part's expected bytes into the full
// expected final content of a target, useful for test assertions.
func ExpectedContent(target *FakeTarget) []byte {
	var buf bytes.Buffer
	buf.Grow(int(target.fileSize))
	for _, p := range target.parts {
		buf.Write(p.expected)
	}
	return buf.Bytes()
}
