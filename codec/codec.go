// Package codec wraps the two compression backends PBIN payload blobs may
// use, keyed by the container header's compression-kind byte: zstd
// (optionally dictionary-aware) and lz4.
package codec

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/xyproto/pbin/pbinerr"
)

// Kind is the closed enumeration stored as a single byte in the container
// header: none (0), zstd (1), lz4 (2).
type Kind byte

const (
	None Kind = iota
	Zstd
	LZ4
)

func (k Kind) String() string {
	switch k {
	case None:
		return "none"
	case Zstd:
		return "zstd"
	case LZ4:
		return "lz4"
	default:
		return "unknown"
	}
}

// ParseKind maps a header byte to a Kind, rejecting unknown values.
func ParseKind(b byte) (Kind, error) {
	switch Kind(b) {
	case None, Zstd, LZ4:
		return Kind(b), nil
	default:
		return 0, pbinerr.New(pbinerr.UnknownCompression, "unknown compression kind byte")
	}
}

// levelForZstd clamps an abstract compression level into zstd's
// EncoderLevel range, matching the three levels the pipeline chooses from
// (Fast=3, Balanced=12, Maximum=19).
func levelForZstd(level int) zstd.EncoderLevel {
	switch {
	case level <= 3:
		return zstd.SpeedFastest
	case level <= 12:
		return zstd.SpeedDefault
	default:
		return zstd.SpeedBestCompression
	}
}

// Encode compresses data with the given kind and level. dictionary may be
// nil; it is only honored for Zstd.
func Encode(kind Kind, data []byte, level int, dictionary []byte) ([]byte, error) {
	switch kind {
	case None:
		out := make([]byte, len(data))
		copy(out, data)
		return out, nil
	case Zstd:
		return zstdEncode(data, level, dictionary)
	case LZ4:
		return lz4Encode(data, level)
	default:
		return nil, pbinerr.New(pbinerr.UnknownCompression, "unknown compression kind")
	}
}

// Decode reverses Encode. dictionary must match what Encode used, if any.
func Decode(kind Kind, data []byte, dictionary []byte) ([]byte, error) {
	switch kind {
	case None:
		out := make([]byte, len(data))
		copy(out, data)
		return out, nil
	case Zstd:
		return zstdDecode(data, dictionary)
	case LZ4:
		return lz4Decode(data)
	default:
		return nil, pbinerr.New(pbinerr.UnknownCompression, "unknown compression kind")
	}
}

func zstdEncode(data []byte, level int, dictionary []byte) ([]byte, error) {
	opts := []zstd.EOption{zstd.WithEncoderLevel(levelForZstd(level))}
	if len(dictionary) > 0 {
		opts = append(opts, zstd.WithEncoderDict(dictionary))
	}
	enc, err := zstd.NewWriter(nil, opts...)
	if err != nil {
		return nil, pbinerr.Wrap(pbinerr.Compression, "create zstd encoder", err)
	}
	defer enc.Close()
	return enc.EncodeAll(data, make([]byte, 0, len(data))), nil
}

func zstdDecode(data []byte, dictionary []byte) ([]byte, error) {
	opts := []zstd.DOption{}
	if len(dictionary) > 0 {
		opts = append(opts, zstd.WithDecoderDicts(dictionary))
	}
	dec, err := zstd.NewReader(nil, opts...)
	if err != nil {
		return nil, pbinerr.Wrap(pbinerr.Decompression, "create zstd decoder", err)
	}
	defer dec.Close()
	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, pbinerr.Wrap(pbinerr.Decompression, "zstd decode", err)
	}
	return out, nil
}

func lz4Encode(data []byte, level int) ([]byte, error) {
	out := &sliceWriter{}
	w := lz4.NewWriter(out)
	lvl := lz4.Level1
	if level > 12 {
		lvl = lz4.Level9
	} else if level > 3 {
		lvl = lz4.Level5
	}
	if err := w.Apply(lz4.CompressionLevelOption(lvl)); err != nil {
		return nil, pbinerr.Wrap(pbinerr.Compression, "configure lz4 encoder", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, pbinerr.Wrap(pbinerr.Compression, "lz4 write", err)
	}
	if err := w.Close(); err != nil {
		return nil, pbinerr.Wrap(pbinerr.Compression, "lz4 close", err)
	}
	return out.buf, nil
}

func lz4Decode(data []byte) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(data))
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, pbinerr.Wrap(pbinerr.Decompression, "lz4 decode", err)
	}
	return out, nil
}

type sliceWriter struct{ buf []byte }

func (s *sliceWriter) Write(p []byte) (int, error) {
	s.buf = append(s.buf, p...)
	return len(p), nil
}
