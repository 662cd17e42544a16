package models

import (
	"fmt"

	"hlsgrab/internal/mediafmt"
)

// SegmentKind distinguishes initialization segments from media segments.
type SegmentKind int

const (
	// SegmentInitialization is the container header shared by all sequence
	// segments of a stream. At most one is meaningful per stream.
	SegmentInitialization SegmentKind = iota
	// SegmentSequence is one media chunk.
	SegmentSequence
)

// ByteRange is an optional sub-range of a segment URL, from EXT-X-BYTERANGE.
type ByteRange struct {
	Length int64
	Offset int64
}

// SegmentKey is the ordering key of a sequence segment within one stream:
// (discontinuity generation, sequence number), compared lexicographically.
type SegmentKey struct {
	Discon uint64
	Seq    uint64
}

// After reports whether k orders strictly after other.
func (k SegmentKey) After(other SegmentKey) bool {
	if k.Discon != other.Discon {
		return k.Discon > other.Discon
	}
	return k.Seq > other.Seq
}

// Segment identifies one fetchable unit of a stream.
//
// For SegmentSequence, Discon and Seq form the ordering key and Format is
// filled in by the writer once the decrypted bytes have been inspected.
type Segment struct {
	Kind      SegmentKind
	URL       string
	ByteRange *ByteRange
	Discon    uint64
	Seq       uint64
	Format    mediafmt.Format
}

// Key returns the segment's ordering key. Only meaningful for SegmentSequence.
func (s *Segment) Key() SegmentKey {
	return SegmentKey{Discon: s.Discon, Seq: s.Seq}
}

// ID returns the string identifier used in file names. The zero padding makes
// lexicographic file-name order equal ordering-key order, which the remuxer
// relies on.
func (s *Segment) ID() string {
	if s.Kind == SegmentInitialization {
		return "init"
	}
	return fmt.Sprintf("d%010ds%010d", s.Discon, s.Seq)
}

// RangeHeader returns the HTTP Range header value for the segment's byte
// range, or "" when the segment has none.
func (s *Segment) RangeHeader() string {
	if s.ByteRange == nil {
		return ""
	}
	start := s.ByteRange.Offset
	end := start
	if s.ByteRange.Length > 0 {
		end = start + s.ByteRange.Length - 1
	}
	return fmt.Sprintf("bytes=%d-%d", start, end)
}

// SegmentFile is one persisted segment and its on-disk location.
type SegmentFile struct {
	Segment Segment
	Path    string
}

// Manifest maps each stream to its downloaded segments in append order.
// Callers that need ordering-key order must sort by Segment.Key.
type Manifest map[Stream][]SegmentFile
