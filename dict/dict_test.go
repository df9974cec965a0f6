package dict

import "testing"

func sample(seed byte) []byte {
	data := make([]byte, 0, 600)
	data = append(data, "\x7fELF\x02\x01\x01\x00"...)
	data = append(data, make([]byte, 8)...)
	for i := 0; i < 500; i++ {
		data = append(data, byte(i)*seed+seed)
	}
	data = append(data, "\x00\x00\x00\x00.text\x00.data\x00"...)
	return data
}

func TestTrainInsufficientSamples(t *testing.T) {
	samples := [][]byte{sample(1), sample(2)}
	if _, err := Train(samples, DefaultSize); err == nil {
		t.Fatal("expected an error with fewer than MinSamples samples")
	}
}

func TestTrainClampsSize(t *testing.T) {
	samples := make([][]byte, 8)
	for i := range samples {
		samples[i] = sample(byte(i + 1))
	}
	trained, err := Train(samples, MaxSize*4)
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	if len(trained.Data) > MaxSize {
		t.Fatalf("dictionary size %d exceeds MaxSize %d", len(trained.Data), MaxSize)
	}
	if trained.SampleCount != len(samples) {
		t.Fatalf("SampleCount = %d, want %d", trained.SampleCount, len(samples))
	}
}
