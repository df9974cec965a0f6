// Package dict trains a zstd dictionary from multiple payload samples and
// exposes a typed handle for the size and provenance of a trained
// dictionary, for use by package codec when compressing a batch of
// related payloads.
package dict

import (
	"sync"

	datadogzstd "github.com/DataDog/zstd"

	"github.com/xyproto/pbin/pbinerr"
)

// DefaultSize is used when the caller does not specify one.
const DefaultSize = 32 * 1024

// MaxSize is the hard ceiling on trained dictionary size.
const MaxSize = 128 * 1024

// MinSamples is the fewest samples the trainer will accept.
const MinSamples = 4

// Trained wraps dictionary bytes with bookkeeping about the corpus that
// produced them.
type Trained struct {
	Data            []byte
	SampleCount     int
	TotalSampleSize int
}

// Train builds a zstd dictionary from samples, clamping size to MaxSize.
// Training itself goes through DataDog/zstd's cgo binding to ZDICT, since
// the pure-Go klauspost/compress/zstd package cannot train dictionaries;
// the resulting bytes are ordinary zstd dictionary format and are used
// for actual (de)compression via klauspost/compress/zstd elsewhere.
func Train(samples [][]byte, size int) (*Trained, error) {
	if len(samples) < MinSamples {
		return nil, pbinerr.New(pbinerr.InvalidData, "need at least 4 samples for dictionary training")
	}
	if size <= 0 {
		size = DefaultSize
	}
	if size > MaxSize {
		size = MaxSize
	}

	total := 0
	for _, s := range samples {
		total += len(s)
	}

	data, err := trainMu(samples, size)
	if err != nil {
		return nil, pbinerr.Wrap(pbinerr.Compression, "dictionary training failed", err)
	}

	return &Trained{
		Data:            data,
		SampleCount:     len(samples),
		TotalSampleSize: total,
	}, nil
}

// trainMu serializes access to the cgo trainer; libzstd's ZDICT trainer is
// not documented as safe for concurrent invocation from multiple goroutines.
var trainLock sync.Mutex

func trainMu(samples [][]byte, size int) ([]byte, error) {
	trainLock.Lock()
	defer trainLock.Unlock()
	return datadogzstd.TrainFromBuffer(samples, size)
}
