// Package container implements the PBIN file format: a launcher prefix
// ending in a payload marker, followed by a fixed-size header, a JSON
// manifest, an optional shared dictionary, and concatenated payloads.
package container

import (
	"encoding/binary"

	"github.com/xyproto/pbin/codec"
	"github.com/xyproto/pbin/pbinerr"
)

// Magic is the 4-byte identifier at the start of every PBIN header.
var Magic = [4]byte{'P', 'B', 'I', 'N'}

// Version is the header format version this package reads and writes.
const Version uint16 = 1

// HeaderSize is the fixed on-disk size of a Header, reserved bytes included.
const HeaderSize = 64

// PayloadMarker separates the launcher prefix from the PBIN container.
const PayloadMarker = "__PBIN_PAYLOAD__"

// Header is the 64-byte fixed record at the start of a PBIN container,
// immediately following the payload marker.
type Header struct {
	Compression  codec.Kind
	EntryCount   uint8
	ManifestSize uint32
	Flags        uint32
}

// ToBytes serializes h to its fixed 64-byte on-disk layout. Bytes 16-63 are
// reserved and always zero.
func (h Header) ToBytes() [HeaderSize]byte {
	var b [HeaderSize]byte
	copy(b[0:4], Magic[:])
	binary.LittleEndian.PutUint16(b[4:6], Version)
	b[6] = byte(h.Compression)
	b[7] = h.EntryCount
	binary.LittleEndian.PutUint32(b[8:12], h.ManifestSize)
	binary.LittleEndian.PutUint32(b[12:16], h.Flags)
	return b
}

// HeaderFromBytes parses a Header from its fixed 64-byte layout, validating
// magic, version, and compression kind.
func HeaderFromBytes(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, pbinerr.HeaderShort(HeaderSize, len(b))
	}
	if b[0] != Magic[0] || b[1] != Magic[1] || b[2] != Magic[2] || b[3] != Magic[3] {
		return Header{}, pbinerr.New(pbinerr.InvalidMagic, "bad PBIN magic")
	}
	version := binary.LittleEndian.Uint16(b[4:6])
	if version != Version {
		return Header{}, pbinerr.New(pbinerr.UnsupportedVersion, "unsupported PBIN header version")
	}
	kind, err := codec.ParseKind(b[6])
	if err != nil {
		return Header{}, err
	}
	return Header{
		Compression:  kind,
		EntryCount:   b[7],
		ManifestSize: binary.LittleEndian.Uint32(b[8:12]),
		Flags:        binary.LittleEndian.Uint32(b[12:16]),
	}, nil
}

// findLastMarker returns the offset immediately after the last occurrence
// of PayloadMarker in data, or -1 if the marker is absent. The last
// occurrence is used (not the first) so a launcher template that itself
// contains marker-like bytes earlier in the file cannot be mistaken for
// the boundary.
func findLastMarker(data []byte) int {
	marker := []byte(PayloadMarker)
	last := -1
	for i := 0; i+len(marker) <= len(data); i++ {
		match := true
		for j := range marker {
			if data[i+j] != marker[j] {
				match = false
				break
			}
		}
		if match {
			last = i
		}
	}
	if last == -1 {
		return -1
	}
	return last + len(marker)
}
