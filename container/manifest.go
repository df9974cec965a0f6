package container

import (
	"encoding/hex"
	"encoding/json"

	"github.com/xyproto/pbin/pbinerr"
)

// Entry describes one embedded payload in the manifest. DeltaReference and
// BCJFiltered round out what the pipeline decided so extraction never has
// to re-derive them.
type Entry struct {
	Target           string `json:"target"`
	Offset           uint64 `json:"offset"`
	CompressedSize   uint64 `json:"compressed_size"`
	UncompressedSize uint64 `json:"uncompressed_size"`
	Checksum         string `json:"checksum"`
	DeltaReference   string `json:"delta_reference,omitempty"`
	BCJFiltered      bool   `json:"bcj_filtered,omitempty"`
}

// ChecksumBytes decodes the entry's hex checksum to raw BLAKE3-256 bytes.
func (e Entry) ChecksumBytes() ([32]byte, error) {
	var out [32]byte
	raw, err := hex.DecodeString(e.Checksum)
	if err != nil || len(raw) != 32 {
		return out, pbinerr.Checksum("64 hex characters", e.Checksum)
	}
	copy(out[:], raw)
	return out, nil
}

// Manifest is the JSON catalog of every payload a PBIN container embeds.
type Manifest struct {
	Name           string  `json:"name"`
	Version        string  `json:"version"`
	DictionarySize uint64  `json:"dictionary_size,omitempty"`
	Entries        []Entry `json:"entries"`
}

// FindEntry locates the manifest entry for target, if any.
func (m *Manifest) FindEntry(target string) (*Entry, error) {
	for i := range m.Entries {
		if m.Entries[i].Target == target {
			return &m.Entries[i], nil
		}
	}
	return nil, pbinerr.TargetNotFoundErr(target)
}

// ToJSON serializes the manifest. Unknown fields on the reading side are
// ignored by encoding/json's default Unmarshal behavior, matching the
// format's forward-compatibility guarantee.
func (m *Manifest) ToJSON() ([]byte, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, pbinerr.Wrap(pbinerr.Parse, "serialize manifest", err)
	}
	return b, nil
}

// ManifestFromJSON parses a manifest, tolerating unknown fields but
// rejecting a JSON shape that doesn't satisfy the manifest schema (missing
// required fields, wrong types).
func ManifestFromJSON(data []byte) (*Manifest, error) {
	if err := validateManifestShape(data); err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, pbinerr.Wrap(pbinerr.Parse, "parse manifest JSON", err)
	}
	return &m, nil
}
