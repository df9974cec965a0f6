// Package segment parses ELF, Mach-O, and PE binaries into a flat list of
// named (offset, size, executable, hash) segments, and detects segments
// that are byte-identical across a batch of binaries.
package segment

import (
	"bytes"
	"debug/elf"
	"encoding/binary"

	macho "github.com/blacktop/go-macho"
	machotypes "github.com/blacktop/go-macho/types"
	saferwallpe "github.com/saferwall/pe"
	"github.com/zeebo/blake3"

	"github.com/xyproto/pbin/pbinerr"
)

// PE section characteristic bit for executable code.
const peExecFlag = 0x20000000

// Mach-O section flag bits for instruction-bearing sections.
const (
	machoPureInstructions = 0x80000000
	machoSomeInstructions = 0x00000400
)

// Segment describes one named region of a binary.
type Segment struct {
	Name       string
	Offset     uint64
	Size       uint64
	Executable bool
	Hash       [32]byte
}

// Parsed holds the segments extracted from one binary, plus the raw bytes
// so callers can slice out segment contents on demand.
type Parsed struct {
	Target   string
	Arch     string
	Segments []Segment
	Data     []byte
}

// Parse detects the binary format of data and extracts its segments.
// Unrecognized formats are informational, not fatal: they yield an empty
// segment list and arch "unknown".
func Parse(target string, data []byte) *Parsed {
	switch {
	case len(data) >= 4 && string(data[0:4]) == "\x7fELF":
		segs, arch := parseELF(data)
		return &Parsed{Target: target, Arch: arch, Segments: segs, Data: data}
	case isMachO(data):
		segs, arch := parseMachO(data)
		return &Parsed{Target: target, Arch: arch, Segments: segs, Data: data}
	case isFatMachO(data):
		sliced := firstFatSlice(data)
		segs, arch := parseMachO(sliced)
		return &Parsed{Target: target, Arch: arch, Segments: segs, Data: data}
	case len(data) >= 2 && data[0] == 'M' && data[1] == 'Z':
		segs, arch := parsePE(data)
		return &Parsed{Target: target, Arch: arch, Segments: segs, Data: data}
	default:
		return &Parsed{Target: target, Arch: "unknown", Data: data}
	}
}

// ExecutableSegments returns the subset of Segments marked executable.
func (p *Parsed) ExecutableSegments() []Segment {
	var out []Segment
	for _, s := range p.Segments {
		if s.Executable {
			out = append(out, s)
		}
	}
	return out
}

// SegmentData returns the bytes backing a segment, clamped to Data's bounds.
func (p *Parsed) SegmentData(s Segment) []byte {
	end := s.Offset + s.Size
	if end > uint64(len(p.Data)) {
		end = uint64(len(p.Data))
	}
	if s.Offset > end {
		return nil
	}
	return p.Data[s.Offset:end]
}

func hashBytes(b []byte) [32]byte {
	return blake3.Sum256(b)
}

func parseELF(data []byte) ([]Segment, string) {
	f, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, "unknown"
	}
	defer f.Close()

	arch := elfArch(f.Machine)
	var segs []Segment
	for _, sec := range f.Sections {
		if sec.Size == 0 {
			continue
		}
		offset, size := uint64(sec.Offset), sec.Size
		if offset+size > uint64(len(data)) {
			continue
		}
		segs = append(segs, Segment{
			Name:       sec.Name,
			Offset:     offset,
			Size:       size,
			Executable: sec.Flags&elf.SHF_EXECINSTR != 0,
			Hash:       hashBytes(data[offset : offset+size]),
		})
	}
	return segs, arch
}

func elfArch(m elf.Machine) string {
	switch m {
	case elf.EM_X86_64:
		return "x86_64"
	case elf.EM_386:
		return "i686"
	case elf.EM_AARCH64:
		return "aarch64"
	case elf.EM_ARM:
		return "arm"
	case elf.EM_RISCV:
		return "riscv64"
	case elf.EM_PPC64:
		return "ppc64"
	default:
		return "unknown"
	}
}

func isMachO(data []byte) bool {
	if len(data) < 4 {
		return false
	}
	magic := binary.BigEndian.Uint32(data[0:4])
	switch magic {
	case 0xfeedface, 0xfeedfacf, 0xcefaedfe, 0xcffaedfe:
		return true
	default:
		return false
	}
}

func isFatMachO(data []byte) bool {
	return len(data) >= 4 && binary.BigEndian.Uint32(data[0:4]) == 0xcafebabe
}

// firstFatSlice extracts the first architecture slice of a Mach-O universal
// binary by hand-parsing the fat header, since the pack's Mach-O parser has
// no universal-binary support of its own.
func firstFatSlice(data []byte) []byte {
	const fatHeaderSize = 8
	const fatArchSize = 20
	if len(data) < fatHeaderSize+fatArchSize {
		return data
	}
	nArch := binary.BigEndian.Uint32(data[4:8])
	if nArch == 0 {
		return data
	}
	archOff := fatHeaderSize
	offset := binary.BigEndian.Uint32(data[archOff+8 : archOff+12])
	size := binary.BigEndian.Uint32(data[archOff+12 : archOff+16])
	end := uint64(offset) + uint64(size)
	if end > uint64(len(data)) {
		return data
	}
	return data[offset:end]
}

func parseMachO(data []byte) ([]Segment, string) {
	f, err := macho.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, "unknown"
	}
	defer f.Close()

	arch := machoArch(f.CPU)
	var segs []Segment
	for _, sec := range f.Sections {
		if sec.Size == 0 {
			continue
		}
		offset, size := uint64(sec.Offset), sec.Size
		if offset+size > uint64(len(data)) {
			continue
		}
		executable := uint32(sec.Flags)&machoPureInstructions != 0 || uint32(sec.Flags)&machoSomeInstructions != 0
		segs = append(segs, Segment{
			Name:       sec.Name,
			Offset:     offset,
			Size:       size,
			Executable: executable,
			Hash:       hashBytes(data[offset : offset+size]),
		})
	}
	return segs, arch
}

func machoArch(cpu machotypes.CPU) string {
	switch cpu {
	case machotypes.CPUAmd64:
		return "x86_64"
	case machotypes.CPUArm64:
		return "aarch64"
	case machotypes.CPUArm:
		return "arm"
	default:
		return "unknown"
	}
}

func parsePE(data []byte) ([]Segment, string) {
	f, err := saferwallpe.NewBytes(data, &saferwallpe.Options{})
	if err != nil {
		return nil, "unknown"
	}
	defer f.Close()
	if err := f.Parse(); err != nil {
		return nil, "unknown"
	}

	arch := "i686"
	if f.Is64 {
		arch = "x86_64"
	}

	var segs []Segment
	for _, sec := range f.Sections {
		name := sec.String()
		offset, size := uint64(sec.Header.PointerToRawData), uint64(sec.Header.SizeOfRawData)
		if size == 0 || offset+size > uint64(len(data)) {
			continue
		}
		segs = append(segs, Segment{
			Name:       name,
			Offset:     offset,
			Size:       size,
			Executable: uint32(sec.Header.Characteristics)&peExecFlag != 0,
			Hash:       hashBytes(data[offset : offset+size]),
		})
	}
	return segs, arch
}

// DuplicateRef locates one occurrence of a duplicated segment: which
// binary in the batch, and which of its segments.
type DuplicateRef struct {
	BinaryIndex  int
	SegmentIndex int
}

// DuplicateGroup is every occurrence of one segment hash that recurs
// across the batch.
type DuplicateGroup struct {
	Hash [32]byte
	Refs []DuplicateRef
}

// Report summarizes cross-binary segment duplication.
type Report struct {
	Duplicates       []DuplicateGroup
	EstimatedSavings uint64
}

// FindDuplicates builds a Report by hashing every segment across binaries
// and retaining hashes that occur more than once. Groups are ordered by
// first occurrence (binary index, then segment index) for determinism.
func FindDuplicates(binaries []*Parsed) *Report {
	byHash := make(map[[32]byte][]DuplicateRef)
	var order [][32]byte
	for bi, bin := range binaries {
		for si, seg := range bin.Segments {
			if _, seen := byHash[seg.Hash]; !seen {
				order = append(order, seg.Hash)
			}
			byHash[seg.Hash] = append(byHash[seg.Hash], DuplicateRef{BinaryIndex: bi, SegmentIndex: si})
		}
	}

	report := &Report{}
	for _, hash := range order {
		refs := byHash[hash]
		if len(refs) < 2 {
			continue
		}
		report.Duplicates = append(report.Duplicates, DuplicateGroup{Hash: hash, Refs: refs})
		for _, ref := range refs[1:] {
			report.EstimatedSavings += binaries[ref.BinaryIndex].Segments[ref.SegmentIndex].Size
		}
	}
	return report
}

// requireValidOffsets reports an InvalidData error when a segment of the
// given offset and size does not fit in dataLen bytes, the bounds invariant
// Parse already guarantees for the segments it returns. Nothing in this
// package calls it.
func requireValidOffsets(offset, size, dataLen uint64) error {
	if offset+size > dataLen {
		return pbinerr.New(pbinerr.InvalidData, "segment bounds exceed binary size")
	}
	return nil
}
