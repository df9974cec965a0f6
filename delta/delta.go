// Package delta implements a suffix-sort based binary diff/patch, a
// sampled similarity estimator, and similarity-based grouping of payloads,
// grounded in the bsdiff family of algorithms.
package delta

import (
	"bytes"
	"encoding/binary"
	"io"
	"sort"
	"strings"

	"github.com/xyproto/pbin/pbinerr"
)

// minMatch is the shortest run considered worth copying from the
// reference instead of folding into a literal run.
const minMatch = 8

type opKind byte

const (
	opCopy opKind = iota
	opLiteral
)

type op struct {
	kind   opKind
	length int
	refPos int
	data   []byte
}

// suffixArray is a sorted index of every starting offset in data, ordered
// by the lexicographic order of the suffix starting there. It drives
// longest-match lookups during diffing.
type suffixArray struct {
	data []byte
	sa   []int
}

func newSuffixArray(data []byte) *suffixArray {
	sa := make([]int, len(data))
	for i := range sa {
		sa[i] = i
	}
	sort.Slice(sa, func(i, j int) bool {
		return bytes.Compare(data[sa[i]:], data[sa[j]:]) < 0
	})
	return &suffixArray{data: data, sa: sa}
}

// longestMatch returns the offset into data and the length of the longest
// common prefix between some suffix of data and query, found by binary
// search over the suffix array followed by a local check of neighbors.
func (s *suffixArray) longestMatch(query []byte) (pos, length int) {
	if len(query) == 0 || len(s.sa) == 0 {
		return 0, 0
	}
	lo, hi := 0, len(s.sa)
	for hi-lo > 1 {
		mid := (lo + hi) / 2
		if bytes.Compare(s.data[s.sa[mid]:], query) <= 0 {
			lo = mid
		} else {
			hi = mid
		}
	}
	pos, length = s.sa[lo], commonPrefixLen(s.data[s.sa[lo]:], query)
	for _, cand := range []int{lo - 1, lo + 1} {
		if cand < 0 || cand >= len(s.sa) {
			continue
		}
		if l := commonPrefixLen(s.data[s.sa[cand]:], query); l > length {
			pos, length = s.sa[cand], l
		}
	}
	return pos, length
}

func commonPrefixLen(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}

// Diff produces a self-describing patch such that Apply(ref, Diff(ref,
// tgt)) reproduces tgt bit-exactly. It walks tgt, using a suffix-sorted
// index of ref to find the longest matching run at each position, and
// folds everything else into literal runs.
func Diff(ref, tgt []byte) []byte {
	sa := newSuffixArray(ref)
	var ops []op
	tpos := 0
	for tpos < len(tgt) {
		pos, length := sa.longestMatch(tgt[tpos:])
		if length >= minMatch {
			ops = append(ops, op{kind: opCopy, length: length, refPos: pos})
			tpos += length
			continue
		}
		start := tpos
		tpos++
		for tpos < len(tgt) {
			_, l := sa.longestMatch(tgt[tpos:])
			if l >= minMatch {
				break
			}
			tpos++
		}
		ops = append(ops, op{kind: opLiteral, data: tgt[start:tpos]})
	}
	return serialize(ops)
}

func serialize(ops []op) []byte {
	var buf bytes.Buffer
	vbuf := make([]byte, binary.MaxVarintLen64)
	putUvarint := func(v uint64) {
		n := binary.PutUvarint(vbuf, v)
		buf.Write(vbuf[:n])
	}
	putUvarint(uint64(len(ops)))
	for _, o := range ops {
		buf.WriteByte(byte(o.kind))
		switch o.kind {
		case opCopy:
			putUvarint(uint64(o.length))
			putUvarint(uint64(o.refPos))
		case opLiteral:
			putUvarint(uint64(len(o.data)))
			buf.Write(o.data)
		}
	}
	return buf.Bytes()
}

// Apply reconstructs the target bytes described by patch relative to ref.
func Apply(ref, patch []byte) ([]byte, error) {
	r := bytes.NewReader(patch)
	numOps, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, pbinerr.Wrap(pbinerr.Delta, "read patch op count", err)
	}
	var out bytes.Buffer
	for i := uint64(0); i < numOps; i++ {
		kindByte, err := r.ReadByte()
		if err != nil {
			return nil, pbinerr.Wrap(pbinerr.Delta, "read patch op kind", err)
		}
		switch opKind(kindByte) {
		case opCopy:
			length, err := binary.ReadUvarint(r)
			if err != nil {
				return nil, pbinerr.Wrap(pbinerr.Delta, "read copy length", err)
			}
			refPos, err := binary.ReadUvarint(r)
			if err != nil {
				return nil, pbinerr.Wrap(pbinerr.Delta, "read copy refPos", err)
			}
			if refPos > uint64(len(ref)) || length > uint64(len(ref))-refPos {
				return nil, pbinerr.New(pbinerr.Delta, "copy op out of bounds of reference")
			}
			out.Write(ref[refPos : refPos+length])
		case opLiteral:
			length, err := binary.ReadUvarint(r)
			if err != nil {
				return nil, pbinerr.Wrap(pbinerr.Delta, "read literal length", err)
			}
			lit := make([]byte, length)
			if _, err := io.ReadFull(r, lit); err != nil {
				return nil, pbinerr.Wrap(pbinerr.Delta, "read literal bytes", err)
			}
			out.Write(lit)
		default:
			return nil, pbinerr.New(pbinerr.Delta, "unknown patch op kind")
		}
	}
	return out.Bytes(), nil
}

// Similarity estimates how alike two byte sequences are, in [0, 1].
func Similarity(a, b []byte) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}
	minLen, maxLen := len(a), len(b)
	if minLen > maxLen {
		minLen, maxLen = maxLen, minLen
	}
	lenRatio := float64(minLen) / float64(maxLen)
	if lenRatio < 0.5 {
		return lenRatio * 0.5
	}
	sampleSize := 1024
	if minLen < sampleSize {
		sampleSize = minLen
	}
	step := minLen / sampleSize
	if step == 0 {
		step = 1
	}
	matches := 0
	for i := 0; i < sampleSize; i++ {
		pos := i * step
		if pos < len(a) && pos < len(b) && a[pos] == b[pos] {
			matches++
		}
	}
	return (float64(matches) / float64(sampleSize)) * lenRatio
}

// Item is a single (target, payload) pair subject to grouping.
type Item struct {
	Target string
	Data   []byte
}

// Group is a cluster of similar items: Reference indexes the item stored
// in full, Others indexes items that may be stored as deltas against it.
type Group struct {
	Reference int
	Others    []int
}

// GroupBySimilarity walks items in order, opening a new group whenever an
// unassigned item is found, and folding in every later unassigned item
// whose target shares the reference's architecture suffix and whose
// similarity meets threshold.
func GroupBySimilarity(items []Item, threshold float64) []Group {
	if len(items) == 0 {
		return nil
	}
	assigned := make([]bool, len(items))
	var groups []Group
	for i := range items {
		if assigned[i] {
			continue
		}
		assigned[i] = true
		g := Group{Reference: i}
		archI := archSuffix(items[i].Target)
		for j := i + 1; j < len(items); j++ {
			if assigned[j] {
				continue
			}
			if archSuffix(items[j].Target) != archI {
				continue
			}
			if Similarity(items[i].Data, items[j].Data) >= threshold {
				assigned[j] = true
				g.Others = append(g.Others, j)
			}
		}
		groups = append(groups, g)
	}
	return groups
}

func archSuffix(target string) string {
	if idx := strings.LastIndexByte(target, '-'); idx >= 0 {
		return target[idx+1:]
	}
	return target
}
