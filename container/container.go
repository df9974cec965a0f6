package container

import (
	"encoding/hex"

	"github.com/zeebo/blake3"

	"github.com/xyproto/pbin/bcj"
	"github.com/xyproto/pbin/codec"
	"github.com/xyproto/pbin/delta"
	"github.com/xyproto/pbin/pbinerr"
	"github.com/xyproto/pbin/pipeline"
	"github.com/xyproto/pbin/target"
)

// maxEntries is the largest entry count the 1-byte header field can hold.
const maxEntries = 255

// Build assembles a complete PBIN file: launcher || header || manifest ||
// dictionary || payloads. inputs supplies the original, pre-filter bytes
// (for checksumming); result is the pipeline output for those same inputs,
// in the same order.
func Build(launcher []byte, name, version string, inputs []pipeline.Input, result *pipeline.Result) ([]byte, error) {
	if len(result.Entries) != len(inputs) {
		return nil, pbinerr.New(pbinerr.InvalidData, "pipeline result does not match input count")
	}
	if len(result.Entries) > maxEntries {
		return nil, pbinerr.New(pbinerr.InvalidData, "too many entries for a single container")
	}

	entries := make([]Entry, len(result.Entries))
	for i, e := range result.Entries {
		sum := blake3.Sum256(inputs[i].Data)
		entries[i] = Entry{
			Target:           e.Target,
			CompressedSize:   uint64(len(e.Data)),
			UncompressedSize: uint64(e.OriginalSize),
			Checksum:         hex.EncodeToString(sum[:]),
			DeltaReference:   e.DeltaReference,
			BCJFiltered:      e.BCJFiltered,
		}
	}

	manifest := &Manifest{
		Name:           name,
		Version:        version,
		DictionarySize: uint64(len(result.Dictionary)),
		Entries:        entries,
	}

	manifestBytes, err := fixupOffsets(manifest, len(result.Dictionary))
	if err != nil {
		return nil, err
	}

	header := Header{
		Compression:  result.Codec,
		EntryCount:   uint8(len(entries)),
		ManifestSize: uint32(len(manifestBytes)),
	}
	headerBytes := header.ToBytes()

	total := len(launcher) + HeaderSize + len(manifestBytes) + len(result.Dictionary)
	for _, e := range result.Entries {
		total += len(e.Data)
	}

	out := make([]byte, 0, total)
	out = append(out, launcher...)
	out = append(out, headerBytes[:]...)
	out = append(out, manifestBytes...)
	out = append(out, result.Dictionary...)
	for _, e := range result.Entries {
		out = append(out, e.Data...)
	}
	return out, nil
}

// fixupOffsets implements the write-side offset fixup procedure: offsets
// depend on the manifest's serialized length, which itself depends on the
// offsets' decimal digit counts, so the manifest is serialized, offsets
// computed, and reserialized until length stabilizes (bounded at a handful
// of iterations; realistic sizes converge within two per the format spec).
func fixupOffsets(manifest *Manifest, dictionarySize int) ([]byte, error) {
	prevLen := -1
	var serialized []byte
	for iter := 0; iter < 8; iter++ {
		b, err := manifest.ToJSON()
		if err != nil {
			return nil, err
		}
		serialized = b
		if len(b) == prevLen {
			return serialized, nil
		}
		prevLen = len(b)

		offset := uint64(HeaderSize + len(b) + dictionarySize)
		for i := range manifest.Entries {
			manifest.Entries[i].Offset = offset
			offset += manifest.Entries[i].CompressedSize
		}
	}
	return serialized, nil
}

// Reader opens a PBIN container for random-access extraction of embedded
// payloads.
type Reader struct {
	data       []byte
	header     Header
	manifest   *Manifest
	payloadOff int
}

// Open locates the payload marker, validates the header, and parses the
// manifest. The last occurrence of the marker in data is used as the
// boundary, so launcher templates that happen to contain marker-like bytes
// earlier in the file cannot be mistaken for it.
func Open(data []byte) (*Reader, error) {
	headerStart := findLastMarker(data)
	if headerStart == -1 {
		return nil, pbinerr.ErrPayloadMarkerNotFound
	}
	if headerStart+HeaderSize > len(data) {
		return nil, pbinerr.HeaderShort(HeaderSize, len(data)-headerStart)
	}
	header, err := HeaderFromBytes(data[headerStart : headerStart+HeaderSize])
	if err != nil {
		return nil, err
	}

	manifestStart := headerStart + HeaderSize
	manifestEnd := manifestStart + int(header.ManifestSize)
	if manifestEnd > len(data) {
		return nil, pbinerr.New(pbinerr.InvalidData, "manifest extends past end of file")
	}
	manifest, err := ManifestFromJSON(data[manifestStart:manifestEnd])
	if err != nil {
		return nil, err
	}

	payloadOff := manifestEnd + int(manifest.DictionarySize)
	if payloadOff > len(data) {
		return nil, pbinerr.New(pbinerr.InvalidData, "dictionary extends past end of file")
	}

	return &Reader{data: data, header: header, manifest: manifest, payloadOff: manifestEnd}, nil
}

// Manifest returns the parsed manifest.
func (r *Reader) Manifest() *Manifest { return r.manifest }

// Dictionary returns the shared zstd dictionary bytes, if any.
func (r *Reader) Dictionary() []byte {
	return r.data[r.payloadOff : r.payloadOff+int(r.manifest.DictionarySize)]
}

// rawPayload returns the undecoded bytes for an entry, bounds-checked
// against the file.
func (r *Reader) rawPayload(e *Entry) ([]byte, error) {
	start := int(e.Offset)
	end := start + int(e.CompressedSize)
	if start < 0 || end > len(r.data) || start > end {
		return nil, pbinerr.New(pbinerr.InvalidData, "entry offset out of bounds")
	}
	return r.data[start:end], nil
}

// Extract reconstructs the original bytes for targetName: decompresses,
// applies a delta patch against its reference if needed (one level of
// indirection only), reverses any BCJ filter, and verifies the checksum.
func (r *Reader) Extract(targetName string) ([]byte, error) {
	entry, err := r.manifest.FindEntry(targetName)
	if err != nil {
		return nil, err
	}
	data, err := r.decodeEntry(entry)
	if err != nil {
		return nil, err
	}

	sum := blake3.Sum256(data)
	want, err := entry.ChecksumBytes()
	if err != nil {
		return nil, err
	}
	if sum != want {
		return nil, pbinerr.Checksum(entry.Checksum, hex.EncodeToString(sum[:]))
	}
	if uint64(len(data)) != entry.UncompressedSize {
		return nil, pbinerr.New(pbinerr.InvalidData, "decoded size does not match manifest")
	}
	return data, nil
}

// decodeEntry decompresses and, if necessary, delta-applies and BCJ-decodes
// one manifest entry, without checksum verification.
func (r *Reader) decodeEntry(entry *Entry) ([]byte, error) {
	raw, err := r.rawPayload(entry)
	if err != nil {
		return nil, err
	}
	decompressed, err := codec.Decode(r.header.Compression, raw, r.Dictionary())
	if err != nil {
		return nil, pbinerr.Wrap(pbinerr.Decompression, "decompress payload", err)
	}

	var data []byte
	if entry.DeltaReference != "" {
		refEntry, err := r.manifest.FindEntry(entry.DeltaReference)
		if err != nil {
			return nil, err
		}
		if refEntry.DeltaReference != "" {
			return nil, pbinerr.New(pbinerr.InvalidData, "delta reference chains are not supported")
		}
		refRaw, err := r.rawPayload(refEntry)
		if err != nil {
			return nil, err
		}
		refData, err := codec.Decode(r.header.Compression, refRaw, r.Dictionary())
		if err != nil {
			return nil, pbinerr.Wrap(pbinerr.Decompression, "decompress delta reference", err)
		}
		// refData stays in BCJ-filtered space: the patch was diffed against
		// the reference's filtered bytes, so applying it here and only then
		// reversing BCJ (below) reproduces the filtered target exactly.
		data, err = delta.Apply(refData, decompressed)
		if err != nil {
			return nil, err
		}
	} else {
		data = decompressed
	}

	if entry.BCJFiltered {
		data = bcjDecodeCopy(entry.Target, data)
	}
	return data, nil
}

// bcjDecodeCopy reverses a BCJ filter on a defensive copy, leaving the
// caller's buffer untouched.
func bcjDecodeCopy(targetName string, data []byte) []byte {
	arch := target.ResolveBcjArch(targetName)
	if arch == target.BcjNone {
		return data
	}
	out := append([]byte(nil), data...)
	bcj.Decode(arch, out, 0)
	return out
}
