// Package pipeline orchestrates BCJ filtering, dictionary training,
// similarity grouping, and per-payload codec selection over a batch of
// (target, bytes) inputs, producing a list of compressed entries and an
// optional trained dictionary.
package pipeline

import (
	"go.uber.org/zap"

	"github.com/xyproto/pbin/bcj"
	"github.com/xyproto/pbin/codec"
	"github.com/xyproto/pbin/delta"
	"github.com/xyproto/pbin/dict"
	"github.com/xyproto/pbin/pbinerr"
	"github.com/xyproto/pbin/target"
)

// Level selects a compression/similarity preset.
type Level int

const (
	Fast Level = iota
	Balanced
	Maximum
)

// ZstdLevel returns the zstd compression level for this preset.
func (l Level) ZstdLevel() int {
	switch l {
	case Fast:
		return 3
	case Maximum:
		return 19
	default:
		return 12
	}
}

// Threshold returns the similarity threshold used for delta grouping.
func (l Level) Threshold() float64 {
	switch l {
	case Fast:
		return 0.8
	case Maximum:
		return 0.4
	default:
		return 0.6
	}
}

// Config controls which pipeline stages run.
type Config struct {
	Level    Level
	Codec    codec.Kind
	UseBCJ   bool
	UseDelta bool
	UseDict  bool
}

// DefaultConfig matches the teacher's balanced-everything-on default.
func DefaultConfig() Config {
	return Config{Level: Balanced, Codec: codec.Zstd, UseBCJ: true, UseDelta: true, UseDict: true}
}

// Input is one (target, payload) pair to compress.
type Input struct {
	Target string
	Data   []byte
}

// CompressedEntry is one output payload, ready for the container writer.
type CompressedEntry struct {
	Target         string
	Data           []byte
	BCJFiltered    bool
	DeltaReference string // empty means not a delta
	OriginalSize   int
}

// Stats reports aggregate outcomes of a compress_all run.
type Stats struct {
	OriginalSize   int
	CompressedSize int
	BCJFiltered    int
	DeltaUsed      int
	DictTrained    bool
}

// Ratio is CompressedSize/OriginalSize, 0 for an empty batch.
func (s Stats) Ratio() float64 {
	if s.OriginalSize == 0 {
		return 0
	}
	return float64(s.CompressedSize) / float64(s.OriginalSize)
}

// SavingsPercent is the space saved, as a percentage.
func (s Stats) SavingsPercent() float64 {
	return (1 - s.Ratio()) * 100
}

// Result is everything CompressAll produces.
type Result struct {
	Entries    []CompressedEntry
	Dictionary []byte
	Stats      Stats
	Codec      codec.Kind
}

// CompressAll runs the full pipeline over inputs. Entries in the result
// are emitted in the same order as inputs, regardless of how they were
// internally grouped for delta compression.
func CompressAll(cfg Config, inputs []Input, logger *zap.Logger) (*Result, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(inputs) == 0 {
		return &Result{Codec: cfg.Codec}, nil
	}

	stats := Stats{}
	for _, in := range inputs {
		stats.OriginalSize += len(in.Data)
	}

	processed := make([][]byte, len(inputs))
	bcjFiltered := make([]bool, len(inputs))
	for i, in := range inputs {
		data := append([]byte(nil), in.Data...)
		if cfg.UseBCJ {
			arch := target.ResolveBcjArch(in.Target)
			if arch != target.BcjNone {
				bcj.Encode(arch, data, 0)
				bcjFiltered[i] = true
				stats.BCJFiltered++
			}
		}
		processed[i] = data
	}

	var dictionary []byte
	if cfg.UseDict && len(processed) >= dict.MinSamples {
		trained, err := dict.Train(processed, dict.DefaultSize)
		if err != nil {
			logger.Warn("dictionary training skipped", zap.Error(err))
		} else {
			dictionary = trained.Data
			stats.DictTrained = true
		}
	}

	items := make([]delta.Item, len(inputs))
	for i, in := range inputs {
		items[i] = delta.Item{Target: in.Target, Data: processed[i]}
	}

	var groups []delta.Group
	if cfg.UseDelta {
		groups = delta.GroupBySimilarity(items, cfg.Level.Threshold())
	} else {
		for i := range inputs {
			groups = append(groups, delta.Group{Reference: i})
		}
	}

	zstdLevel := cfg.Level.ZstdLevel()
	entries := make([]CompressedEntry, len(inputs))

	for _, g := range groups {
		refData := processed[g.Reference]
		compressedRef, err := codec.Encode(cfg.Codec, refData, zstdLevel, dictionary)
		if err != nil {
			return nil, pbinerr.Wrap(pbinerr.Compression, "compress reference payload", err)
		}
		entries[g.Reference] = CompressedEntry{
			Target:       inputs[g.Reference].Target,
			Data:         compressedRef,
			BCJFiltered:  bcjFiltered[g.Reference],
			OriginalSize: len(refData),
		}

		for _, j := range g.Others {
			tgtData := processed[j]

			patch := delta.Diff(refData, tgtData)
			compressedPatch, err := codec.Encode(cfg.Codec, patch, zstdLevel, dictionary)
			if err != nil {
				return nil, pbinerr.Wrap(pbinerr.Compression, "compress delta patch", err)
			}
			direct, err := codec.Encode(cfg.Codec, tgtData, zstdLevel, dictionary)
			if err != nil {
				return nil, pbinerr.Wrap(pbinerr.Compression, "compress direct payload", err)
			}

			entry := CompressedEntry{
				Target:       inputs[j].Target,
				BCJFiltered:  bcjFiltered[j],
				OriginalSize: len(tgtData),
			}
			if len(compressedPatch) < len(direct) {
				stats.DeltaUsed++
				entry.Data = compressedPatch
				entry.DeltaReference = inputs[g.Reference].Target
			} else {
				entry.Data = direct
			}
			entries[j] = entry
		}
	}

	stats.CompressedSize = len(dictionary)
	for _, e := range entries {
		stats.CompressedSize += len(e.Data)
	}

	return &Result{Entries: entries, Dictionary: dictionary, Stats: stats, Codec: cfg.Codec}, nil
}
