package core

import (
	"io"

	"github.com/klauspost/compress/zstd"
)

// decompressingReader returns the reader an install task should hand to
// Part.Reconstruct for one part, and a cleanup func that must run once
// Reconstruct returns. raw is bounded to exactly n bytes first - the
// source patch scheme packs one independent zstd frame per part, so
// bounding prevents the decoder from reading into the next part's frame.
// When compressed is false, raw is returned bounded but otherwise
// untouched.
func decompressingReader(raw io.Reader, n int64, compressed bool) (io.Reader, func(), error) {
	bounded := io.LimitReader(raw, n)
	if !compressed {
		return bounded, func() {}, nil
	}
	dec, err := zstd.NewReader(bounded)
	if err != nil {
		return nil, func() {}, err
	}
	return dec, dec.Close, nil
}
