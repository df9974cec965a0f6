// Package bcj implements reversible branch/call/jump filters that rewrite
// relative operands in machine code to absolute addresses, improving
// compressibility of executable payloads without changing their semantics
// once decoded back.
//
// Each filter operates in place on a caller-owned buffer and tracks a
// running `pos`, the number of bytes already processed in prior calls, so
// that streaming callers can filter a binary in chunks and get identical
// results to filtering the whole buffer at once.
package bcj

import "github.com/xyproto/pbin/target"

// Arch selects which branch-instruction encoding a filter rewrites.
type Arch = target.BcjArch

const (
	None    = target.BcjNone
	X86     = target.BcjX86
	Arm     = target.BcjArm
	Arm64   = target.BcjArm64
	RiscV   = target.BcjRiscV
	Ppc64Le = target.BcjPpc64Le
)

// Filter holds the running position for a streaming BCJ pass. Callers that
// filter a whole buffer at once can ignore it and use Encode/Decode, which
// start pos at 0.
type Filter struct {
	arch Arch
	pos  uint32
}

// New returns a streaming filter for the given architecture.
func New(arch Arch) *Filter { return &Filter{arch: arch} }

// Encode filters data in place, converting relative branch operands to
// absolute addresses, continuing from the position left by prior calls.
func (f *Filter) Encode(data []byte) {
	switch f.arch {
	case X86:
		x86(data, f.pos, true)
	case Arm64:
		arm64(data, f.pos, true)
	case Arm:
		arm(data, f.pos, true)
	case RiscV:
		riscv(data, f.pos, true)
	case Ppc64Le:
		ppc64le(data, f.pos, true)
	}
	f.pos += uint32(len(data))
}

// Decode inverts Encode, converting absolute addresses back to relative.
func (f *Filter) Decode(data []byte) {
	switch f.arch {
	case X86:
		x86(data, f.pos, false)
	case Arm64:
		arm64(data, f.pos, false)
	case Arm:
		arm(data, f.pos, false)
	case RiscV:
		riscv(data, f.pos, false)
	case Ppc64Le:
		ppc64le(data, f.pos, false)
	}
	f.pos += uint32(len(data))
}

// Encode is a convenience wrapper for filtering a whole buffer starting at
// the given position, without retaining filter state across calls.
func Encode(arch Arch, data []byte, pos uint32) { f := &Filter{arch: arch, pos: pos}; f.Encode(data) }

// Decode is the Encode counterpart for the reverse direction.
func Decode(arch Arch, data []byte, pos uint32) { f := &Filter{arch: arch, pos: pos}; f.Decode(data) }

// x86 filters CALL (0xE8) and near JMP (0xE9) instructions, rewriting the
// trailing 32-bit little-endian relative displacement.
func x86(data []byte, pos uint32, encode bool) {
	if len(data) < 5 {
		return
	}
	limit := len(data) - 4
	i := 0
	for i < limit {
		if data[i] == 0xE8 || data[i] == 0xE9 {
			rel := int32(le32(data[i+1:]))
			instrEnd := int32(pos) + int32(i) + 5
			var out int32
			if encode {
				out = rel + instrEnd
			} else {
				out = rel - instrEnd
			}
			putLE32(data[i+1:], uint32(out))
			i += 5
		} else {
			i++
		}
	}
}

// arm64 filters BL instructions (top 6 bits 0b100101, mask 0xFC00_0000
// matching 0x9400_0000), rewriting the 26-bit word-offset field.
func arm64(data []byte, pos uint32, encode bool) {
	if len(data) < 4 {
		return
	}
	i := int(pos & 3)
	if i != 0 {
		i = 4 - i
	}
	for i+4 <= len(data) {
		inst := le32(data[i:])
		if inst&0xFC000000 == 0x94000000 {
			if encode {
				offset := int32(inst&0x03FFFFFF<<6) >> 6
				addr := int32(pos) + int32(i) + offset*4
				newOffset := uint32(addr>>2) & 0x03FFFFFF
				inst = (inst & 0xFC000000) | newOffset
			} else {
				addr := int32(inst&0x03FFFFFF<<6) >> 4
				offset := (addr - (int32(pos) + int32(i))) >> 2
				inst = (inst & 0xFC000000) | (uint32(offset) & 0x03FFFFFF)
			}
			putLE32(data[i:], inst)
		}
		i += 4
	}
}

// arm filters 32-bit ARM BL instructions ((word & 0x0F00_0000) ==
// 0x0B00_0000), applying the ARM pipeline bias of pos+i+8.
func arm(data []byte, pos uint32, encode bool) {
	if len(data) < 4 {
		return
	}
	i := int(pos & 3)
	if i != 0 {
		i = 4 - i
	}
	for i+4 <= len(data) {
		inst := le32(data[i:])
		if inst&0x0F000000 == 0x0B000000 {
			if encode {
				offset := int32(inst&0x00FFFFFF<<8) >> 6
				addr := int32(pos) + int32(i) + 8 + offset
				newOffset := uint32(addr>>2) & 0x00FFFFFF
				inst = (inst & 0xFF000000) | newOffset
			} else {
				addr := int32(inst&0x00FFFFFF<<8) >> 6
				offset := (addr - (int32(pos) + int32(i) + 8)) >> 2
				inst = (inst & 0xFF000000) | (uint32(offset) & 0x00FFFFFF)
			}
			putLE32(data[i:], inst)
		}
		i += 4
	}
}

// riscv filters JAL instructions (low 7 bits == 0x6F), decoding the
// interleaved 20-bit signed immediate and re-encoding it after rewriting.
func riscv(data []byte, pos uint32, encode bool) {
	if len(data) < 4 {
		return
	}
	i := int(pos & 1)
	if i != 0 {
		i = 2 - i
	}
	for i+4 <= len(data) {
		inst := le32(data[i:])
		if inst&0x7F == 0x6F {
			imm20 := (inst >> 31) & 1
			imm10_1 := (inst >> 21) & 0x3FF
			imm11 := (inst >> 20) & 1
			imm19_12 := (inst >> 12) & 0xFF

			var newImm uint32
			if encode {
				packed := int32((imm20 << 20) | (imm19_12 << 12) | (imm11 << 11) | (imm10_1 << 1))
				offset := packed << 11 >> 11
				addr := int32(pos) + int32(i) + offset
				newImm = uint32(addr)
			} else {
				packed := int32((imm20 << 20) | (imm19_12 << 12) | (imm11 << 11) | (imm10_1 << 1))
				addr := packed << 11 >> 11
				newImm = uint32(addr - (int32(pos) + int32(i)))
			}
			nb20 := (newImm >> 20) & 1
			nb10_1 := (newImm >> 1) & 0x3FF
			nb11 := (newImm >> 11) & 1
			nb19_12 := (newImm >> 12) & 0xFF
			inst = (inst & 0xFFF) | (nb19_12 << 12) | (nb11 << 20) | (nb10_1 << 21) | (nb20 << 31)
			putLE32(data[i:], inst)
		}
		i += 4
	}
}

// ppc64le filters b/bl instructions (opcode field == 18), preserving the
// low two bits (AA, LK) and the opcode while rewriting the 24-bit LI field.
func ppc64le(data []byte, pos uint32, encode bool) {
	if len(data) < 4 {
		return
	}
	i := int(pos & 3)
	if i != 0 {
		i = 4 - i
	}
	for i+4 <= len(data) {
		inst := le32(data[i:])
		if (inst>>26)&0x3F == 18 {
			li := (inst >> 2) & 0x00FFFFFF
			if encode {
				offset := int32(li<<8) >> 6
				addr := int32(pos) + int32(i) + offset
				newLI := uint32(addr>>2) & 0x00FFFFFF
				inst = (inst & 0xFC000003) | (newLI << 2)
			} else {
				addr := int32(li<<8) >> 6
				offset := addr - (int32(pos) + int32(i))
				newLI := uint32(offset>>2) & 0x00FFFFFF
				inst = (inst & 0xFC000003) | (newLI << 2)
			}
			putLE32(data[i:], inst)
		}
		i += 4
	}
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func putLE32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}
