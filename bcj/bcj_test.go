package bcj

import (
	"bytes"
	"testing"
)

func TestX86Roundtrip(t *testing.T) {
	original := []byte{
		0x55, 0x48, 0x89, 0xe5, // push rbp; mov rbp, rsp
		0xE8, 0x10, 0x00, 0x00, 0x00, // call +16
		0x48, 0x89, 0xec, 0x5d, // mov rsp, rbp; pop rbp
		0xC3,                         // ret
		0xE9, 0xF0, 0xFF, 0xFF, 0xFF, // jmp -16
	}
	data := append([]byte(nil), original...)

	Encode(X86, data, 0)
	if bytes.Equal(data, original) {
		t.Fatal("encoding should change the buffer")
	}
	Decode(X86, data, 0)
	if !bytes.Equal(data, original) {
		t.Fatalf("roundtrip mismatch: got %x, want %x", data, original)
	}
}

func TestX86SmallBufferUnchanged(t *testing.T) {
	data := []byte{0xE8, 0x01, 0x02}
	original := append([]byte(nil), data...)
	Encode(X86, data, 0)
	if !bytes.Equal(data, original) {
		t.Fatalf("short buffer should pass through unchanged, got %x", data)
	}
}

func TestX86EmptyBuffer(t *testing.T) {
	data := []byte{}
	Encode(X86, data, 0)
	if len(data) != 0 {
		t.Fatal("empty buffer should remain empty")
	}
}

func arm64BLWord(imm26 uint32) []byte {
	word := 0x94000000 | (imm26 & 0x03FFFFFF)
	return []byte{byte(word), byte(word >> 8), byte(word >> 16), byte(word >> 24)}
}

func TestArm64Roundtrip(t *testing.T) {
	buf := append([]byte{0x1f, 0x20, 0x03, 0xd5}, arm64BLWord(100)...)
	buf = append(buf, 0x1f, 0x20, 0x03, 0xd5)
	original := append([]byte(nil), buf...)

	for _, pos := range []uint32{0, 4, 4096} {
		data := append([]byte(nil), original...)
		Encode(Arm64, data, pos)
		Decode(Arm64, data, pos)
		if !bytes.Equal(data, original) {
			t.Fatalf("pos=%d: roundtrip mismatch: got %x, want %x", pos, data, original)
		}
	}
}

func armBLWord(imm24 uint32) []byte {
	word := uint32(0xEB000000) | (imm24 & 0x00FFFFFF)
	return []byte{byte(word), byte(word >> 8), byte(word >> 16), byte(word >> 24)}
}

func TestArmRoundtrip(t *testing.T) {
	original := armBLWord(500)
	for _, pos := range []uint32{0, 4, 1000} {
		data := append([]byte(nil), original...)
		Encode(Arm, data, pos)
		Decode(Arm, data, pos)
		if !bytes.Equal(data, original) {
			t.Fatalf("pos=%d: roundtrip mismatch: got %x, want %x", pos, data, original)
		}
	}
}

func riscvJALWord(imm uint32) []byte {
	imm20 := (imm >> 20) & 1
	imm10_1 := (imm >> 1) & 0x3FF
	imm11 := (imm >> 11) & 1
	imm19_12 := (imm >> 12) & 0xFF
	word := uint32(0x6F) | (imm19_12 << 12) | (imm11 << 20) | (imm10_1 << 21) | (imm20 << 31)
	return []byte{byte(word), byte(word >> 8), byte(word >> 16), byte(word >> 24)}
}

func TestRiscVRoundtrip(t *testing.T) {
	original := riscvJALWord(64)
	for _, pos := range []uint32{0, 2, 4, 10000} {
		data := append([]byte(nil), original...)
		Encode(RiscV, data, pos)
		Decode(RiscV, data, pos)
		if !bytes.Equal(data, original) {
			t.Fatalf("pos=%d: roundtrip mismatch: got %x, want %x", pos, data, original)
		}
	}
}

func ppc64BWord(li uint32) []byte {
	word := (uint32(18) << 26) | ((li & 0x00FFFFFF) << 2)
	return []byte{byte(word), byte(word >> 8), byte(word >> 16), byte(word >> 24)}
}

func TestPpc64LeRoundtrip(t *testing.T) {
	original := ppc64BWord(200)
	for _, pos := range []uint32{0, 4, 8192} {
		data := append([]byte(nil), original...)
		Encode(Ppc64Le, data, pos)
		Decode(Ppc64Le, data, pos)
		if !bytes.Equal(data, original) {
			t.Fatalf("pos=%d: roundtrip mismatch: got %x, want %x", pos, data, original)
		}
	}
}

func TestNoneIsPassthrough(t *testing.T) {
	data := []byte{0xE8, 0x01, 0x02, 0x03, 0x04, 0x05}
	original := append([]byte(nil), data...)
	Encode(None, data, 0)
	if !bytes.Equal(data, original) {
		t.Fatal("None arch must never modify the buffer")
	}
}

// TestStreamingMatchesWholeBuffer verifies that filtering in two chunks via
// a stateful Filter produces the same result as filtering the whole buffer
// in one call, given the chunk boundary falls on an instruction boundary.
func TestStreamingMatchesWholeBuffer(t *testing.T) {
	whole := append([]byte{0x55, 0x48, 0x89, 0xe5, 0xE8, 0x10, 0x00, 0x00, 0x00}, arm64BLWord(40)...)

	oneShot := append([]byte(nil), whole...)
	Encode(X86, oneShot, 0)

	streamed := append([]byte(nil), whole...)
	f := New(X86)
	chunk1 := streamed[:9]
	f.Encode(chunk1)
	chunk2 := streamed[9:]
	f.Encode(chunk2)

	if !bytes.Equal(streamed, oneShot) {
		t.Fatalf("streamed mismatch: got %x, want %x", streamed, oneShot)
	}
}
