package core

import (
	"sort"
	"sync"
)

// PartRef identifies one (target, part) pair.
type PartRef struct {
	TargetIndex int
	PartIndex   int
}

// Ledger is the Missing-Parts Ledger (spec §3/§4.B): three indexed sets
// tracking which parts are missing per target file, per source patch, and
// which target files have the wrong on-disk size. It is mutated under a
// single mutex, exclusively during verification - install tasks track
// their own pending lists and never write back into the Ledger.
type Ledger struct {
	mu sync.Mutex

	missingByTarget map[int]map[int]struct{}    // targetIndex -> set of partIndex
	missingByPatch  map[int]map[PartRef]struct{} // sourceIndex -> set of (target,part)
	sizeMismatch    map[int]struct{}            // set of targetIndex
}

// NewLedger returns an empty Ledger.
func NewLedger() *Ledger {
	return &Ledger{
		missingByTarget: make(map[int]map[int]struct{}),
		missingByPatch:  make(map[int]map[PartRef]struct{}),
		sizeMismatch:    make(map[int]struct{}),
	}
}

// Reset clears all three sets. Called before each VerifyFiles pass so the
// ledger only ever reflects the most recent verification (spec §8
// property 2: verifying unchanged targets twice yields identical
// ledgers).
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.missingByTarget = make(map[int]map[int]struct{})
	l.missingByPatch = make(map[int]map[PartRef]struct{})
	l.sizeMismatch = make(map[int]struct{})
}

func (l *Ledger) markPartLocked(part Part) {
	ti, pi := part.TargetIndex(), part.PartIndex()

	set, ok := l.missingByTarget[ti]
	if !ok {
		set = make(map[int]struct{})
		l.missingByTarget[ti] = set
	}
	set[pi] = struct{}{}

	if part.IsFromSourceFile() {
		s := part.SourceIndex()
		pairs, ok := l.missingByPatch[s]
		if !ok {
			pairs = make(map[PartRef]struct{})
			l.missingByPatch[s] = pairs
		}
		pairs[PartRef{TargetIndex: ti, PartIndex: pi}] = struct{}{}
	}
}

// MarkPartMissing records a single part as missing (spec §4.B, "on
// verification failure of a single part").
func (l *Ledger) MarkPartMissing(part Part) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.markPartLocked(part)
}

// MarkFileMissing records every part of target as missing (spec §4.B,
// "markFileAsMissing").
func (l *Ledger) MarkFileMissing(target Target) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := 0; i < target.PartCount(); i++ {
		l.markPartLocked(target.Part(i))
	}
}

// MarkSizeMismatch records targetIndex as having a wrong on-disk length.
func (l *Ledger) MarkSizeMismatch(targetIndex int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sizeMismatch[targetIndex] = struct{}{}
}

// MissingPartsForTarget returns the sorted part indices missing from
// targetIndex.
func (l *Ledger) MissingPartsForTarget(targetIndex int) []int {
	l.mu.Lock()
	defer l.mu.Unlock()
	set := l.missingByTarget[targetIndex]
	out := make([]int, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Ints(out)
	return out
}

// MissingPartsForPatch returns the sorted (target,part) pairs whose
// reconstruction needs source patch sourceIndex.
func (l *Ledger) MissingPartsForPatch(sourceIndex int) []PartRef {
	l.mu.Lock()
	defer l.mu.Unlock()
	set := l.missingByPatch[sourceIndex]
	out := make([]PartRef, 0, len(set))
	for ref := range set {
		out = append(out, ref)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TargetIndex != out[j].TargetIndex {
			return out[i].TargetIndex < out[j].TargetIndex
		}
		return out[i].PartIndex < out[j].PartIndex
	})
	return out
}

// SizeMismatchTargets returns the sorted target indices whose on-disk
// length does not equal the index's expected size.
func (l *Ledger) SizeMismatchTargets() []int {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]int, 0, len(l.sizeMismatch))
	for t := range l.sizeMismatch {
		out = append(out, t)
	}
	sort.Ints(out)
	return out
}

// IsEmpty reports whether any part is currently recorded missing anywhere
// (size mismatches alone do not count - they drive which files get
// reopened for write, not what gets repaired).
func (l *Ledger) IsEmpty() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, set := range l.missingByTarget {
		if len(set) > 0 {
			return false
		}
	}
	return true
}

// HasAnyAttention reports whether targetIndex has missing parts or a size
// mismatch - i.e. whether that target needs to be (re)opened for write.
func (l *Ledger) HasAnyAttention(targetIndex int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.missingByTarget[targetIndex]) > 0 {
		return true
	}
	_, mismatched := l.sizeMismatch[targetIndex]
	return mismatched
}
