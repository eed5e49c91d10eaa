// Package jsonindex is a concrete, JSON-backed core.Index implementation
// for the patchcore CLI. Building the production patch index format is
// out of scope for this module; this package exists so the CLI has
// something runnable to point at. Each part's bytes are taken directly
// (a straight copy, or embedded data decoded from base64) rather than
// run through a binary-diff algorithm, since the diff wire format is
// likewise out of scope - the CLI only needs to exercise Verify/
// Reconstruct/ReconstructWithoutSourceData, not implement real patching.
package jsonindex

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"

	"github.com/patchkit/corepatch/internal/core"
)

type partDoc struct {
	TargetOffset       int64  `json:"targetOffset"`
	Size               int64  `json:"size"`
	Hash               string `json:"hash"`
	FromSource         bool   `json:"fromSource"`
	SourceIndex        int    `json:"sourceIndex"`
	SourceOffset       int64  `json:"sourceOffset"`
	MaxSourceEnd       int64  `json:"maxSourceEnd"`
	EmbeddedDataBase64 string `json:"embeddedDataBase64"`
}

type targetDoc struct {
	Path     string    `json:"path"`
	FileSize int64     `json:"fileSize"`
	Parts    []partDoc `json:"parts"`
}

type sourcePatchDoc struct {
	LastPtr    int64 `json:"lastPtr"`
	Compressed bool  `json:"compressed"`
}

type indexDoc struct {
	Version        string           `json:"version"`
	VersionFileVer string           `json:"versionFileVer"`
	VersionFileBck string           `json:"versionFileBck"`
	SourcePatches  []sourcePatchDoc `json:"sourcePatches"`
	Targets        []targetDoc      `json:"targets"`
}

// Index is a core.Index backed by a parsed JSON document.
type Index struct {
	doc indexDoc
}

// Load reads and parses a JSON index document from path.
func Load(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read index document %s: %w", path, err)
	}
	var doc indexDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse index document %s: %w", path, err)
	}
	return &Index{doc: doc}, nil
}

func (idx *Index) TargetCount() int { return len(idx.doc.Targets) }

func (idx *Index) Target(i int) core.Target {
	return &target{doc: &idx.doc.Targets[i], targetIndex: i}
}

func (idx *Index) SourcePatchCount() int { return len(idx.doc.SourcePatches) }

func (idx *Index) GetSourceLastPtr(sourceIndex int) int64 {
	if sourceIndex < 0 || sourceIndex >= len(idx.doc.SourcePatches) {
		return 1 << 62
	}
	return idx.doc.SourcePatches[sourceIndex].LastPtr
}

func (idx *Index) IsSourceCompressed(sourceIndex int) bool {
	if sourceIndex < 0 || sourceIndex >= len(idx.doc.SourcePatches) {
		return false
	}
	return idx.doc.SourcePatches[sourceIndex].Compressed
}

func (idx *Index) VersionName() string    { return idx.doc.Version }
func (idx *Index) VersionFileVer() string { return idx.doc.VersionFileVer }
func (idx *Index) VersionFileBck() string { return idx.doc.VersionFileBck }

type target struct {
	doc         *targetDoc
	targetIndex int
}

func (t *target) Path() string    { return t.doc.Path }
func (t *target) FileSize() int64 { return t.doc.FileSize }
func (t *target) PartCount() int  { return len(t.doc.Parts) }

func (t *target) Part(partIndex int) core.Part {
	return &part{doc: &t.doc.Parts[partIndex], targetIndex: t.targetIndex, partIndex: partIndex}
}

type part struct {
	doc         *partDoc
	targetIndex int
	partIndex   int
}

func (p *part) TargetIndex() int      { return p.targetIndex }
func (p *part) PartIndex() int        { return p.partIndex }
func (p *part) TargetOffset() int64   { return p.doc.TargetOffset }
func (p *part) TargetSize() int64     { return p.doc.Size }
func (p *part) IsFromSourceFile() bool { return p.doc.FromSource }
func (p *part) SourceIndex() int      { return p.doc.SourceIndex }
func (p *part) SourceOffset() int64   { return p.doc.SourceOffset }
func (p *part) MaxSourceEnd() int64   { return p.doc.MaxSourceEnd }

func (p *part) Verify(targetStream io.ReadSeeker) (core.VerifyResult, error) {
	if _, err := targetStream.Seek(p.doc.TargetOffset, io.SeekStart); err != nil {
		return core.VerifyFailUnverifiable, fmt.Errorf("seek to part offset: %w", err)
	}
	buf := make([]byte, p.doc.Size)
	n, err := io.ReadFull(targetStream, buf)
	if err == io.ErrUnexpectedEOF || err == io.EOF {
		return core.VerifyFailNotEnoughData, nil
	}
	if err != nil {
		return core.VerifyFailUnverifiable, fmt.Errorf("read part bytes: %w", err)
	}

	expected, err := hex.DecodeString(p.doc.Hash)
	if err != nil {
		return core.VerifyFailUnverifiable, fmt.Errorf("%w: decode expected hash for part %d: %v", core.ErrInvariantViolated, p.partIndex, err)
	}
	if len(expected) != 8 {
		return core.VerifyFailUnverifiable, fmt.Errorf("%w: part %d hash is %d bytes, want 8", core.ErrInvariantViolated, p.partIndex, len(expected))
	}
	want := uint64(expected[0])<<56 | uint64(expected[1])<<48 | uint64(expected[2])<<40 | uint64(expected[3])<<32 |
		uint64(expected[4])<<24 | uint64(expected[5])<<16 | uint64(expected[6])<<8 | uint64(expected[7])

	if xxhash.Sum64(buf[:n]) != want {
		return core.VerifyFailBadData, nil
	}
	return core.VerifyPass, nil
}

func (p *part) Reconstruct(source io.Reader, out []byte) error {
	_, err := io.ReadFull(source, out[:p.doc.Size])
	return err
}

func (p *part) ReconstructWithoutSourceData(out []byte) error {
	data, err := base64.StdEncoding.DecodeString(p.doc.EmbeddedDataBase64)
	if err != nil {
		return fmt.Errorf("decode embedded data for part %d: %w", p.partIndex, err)
	}
	if int64(len(data)) != p.doc.Size {
		return fmt.Errorf("%w: embedded data for part %d is %d bytes, want %d", core.ErrInvariantViolated, p.partIndex, len(data), p.doc.Size)
	}
	copy(out, data)
	return nil
}
