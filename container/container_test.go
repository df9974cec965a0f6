package container

import (
	"bytes"
	"testing"

	"github.com/xyproto/pbin/pipeline"
)

func makeBinary(seed byte) []byte {
	data := make([]byte, 0, 4096)
	data = append(data, "\x7fELF\x02\x01\x01\x00"...)
	data = append(data, make([]byte, 8)...)
	for i := 0; i < 500; i++ {
		if i%20 == 0 {
			data = append(data, 0xE8, byte(i)+seed, 0x00, 0x00, 0x00)
		} else {
			data = append(data, byte(i)*(seed+1))
		}
	}
	return data
}

func buildTestContainer(t *testing.T, cfg pipeline.Config, inputs []pipeline.Input) ([]byte, *Reader) {
	t.Helper()
	result, err := pipeline.CompressAll(cfg, inputs, nil)
	if err != nil {
		t.Fatalf("CompressAll: %v", err)
	}
	launcher := append([]byte("#!/bin/sh\nexit 1\n"), []byte(PayloadMarker)...)
	file, err := Build(launcher, "demo", "1.0.0", inputs, result)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	r, err := Open(file)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return file, r
}

func TestRoundTripExtractMatchesOriginal(t *testing.T) {
	inputs := []pipeline.Input{
		{Target: "linux-x86_64", Data: makeBinary(1)},
		{Target: "darwin-x86_64", Data: makeBinary(2)},
		{Target: "linux-aarch64", Data: makeBinary(3)},
		{Target: "darwin-aarch64", Data: makeBinary(4)},
	}
	_, r := buildTestContainer(t, pipeline.DefaultConfig(), inputs)

	if r.Manifest().Name != "demo" || r.Manifest().Version != "1.0.0" {
		t.Fatalf("unexpected manifest identity: %+v", r.Manifest())
	}
	if len(r.Manifest().Entries) != len(inputs) {
		t.Fatalf("expected %d entries, got %d", len(inputs), len(r.Manifest().Entries))
	}

	for _, in := range inputs {
		got, err := r.Extract(in.Target)
		if err != nil {
			t.Fatalf("Extract(%s): %v", in.Target, err)
		}
		if !bytes.Equal(got, in.Data) {
			t.Fatalf("Extract(%s): data mismatch", in.Target)
		}
	}
}

func TestHeaderFields(t *testing.T) {
	inputs := []pipeline.Input{
		{Target: "linux-x86_64", Data: makeBinary(1)},
		{Target: "darwin-x86_64", Data: makeBinary(2)},
		{Target: "linux-aarch64", Data: makeBinary(3)},
	}
	file, r := buildTestContainer(t, pipeline.DefaultConfig(), inputs)

	if r.header.EntryCount != 3 {
		t.Fatalf("entry_count = %d, want 3", r.header.EntryCount)
	}
	headerStart := findLastMarker(file)
	if headerStart == -1 {
		t.Fatal("expected to find payload marker")
	}
	if string(file[headerStart:headerStart+4]) != "PBIN" {
		t.Fatalf("header magic = %q, want PBIN", file[headerStart:headerStart+4])
	}
}

func TestOpenMissingMarker(t *testing.T) {
	if _, err := Open([]byte("no marker here")); err == nil {
		t.Fatal("expected an error for a file without a payload marker")
	}
}

func TestOpenTruncatedHeader(t *testing.T) {
	data := append([]byte("prefix"), []byte(PayloadMarker)...)
	data = append(data, []byte{1, 2, 3}...)
	if _, err := Open(data); err == nil {
		t.Fatal("expected an error for a truncated header")
	}
}

func TestExtractUnknownTarget(t *testing.T) {
	inputs := []pipeline.Input{
		{Target: "linux-x86_64", Data: makeBinary(1)},
		{Target: "darwin-x86_64", Data: makeBinary(2)},
	}
	_, r := buildTestContainer(t, pipeline.DefaultConfig(), inputs)
	if _, err := r.Extract("windows-x86_64"); err == nil {
		t.Fatal("expected an error for a target absent from the manifest")
	}
}

func TestOffsetsDoNotOverlap(t *testing.T) {
	inputs := []pipeline.Input{
		{Target: "linux-x86_64", Data: makeBinary(1)},
		{Target: "darwin-x86_64", Data: makeBinary(2)},
		{Target: "linux-aarch64", Data: makeBinary(3)},
	}
	file, r := buildTestContainer(t, pipeline.DefaultConfig(), inputs)

	entries := append([]Entry(nil), r.Manifest().Entries...)
	for i, e := range entries {
		end := e.Offset + e.CompressedSize
		if end > uint64(len(file)) {
			t.Fatalf("entry %d end %d exceeds file length %d", i, end, len(file))
		}
		for j, other := range entries {
			if i == j {
				continue
			}
			otherEnd := other.Offset + other.CompressedSize
			overlap := e.Offset < otherEnd && other.Offset < end
			if overlap {
				t.Fatalf("entries %d and %d overlap", i, j)
			}
		}
	}
}

func TestNoCompressionRoundTrip(t *testing.T) {
	cfg := pipeline.Config{Level: pipeline.Fast}
	inputs := []pipeline.Input{
		{Target: "linux-x86_64", Data: makeBinary(1)},
		{Target: "darwin-x86_64", Data: makeBinary(2)},
	}
	_, r := buildTestContainer(t, cfg, inputs)
	for _, in := range inputs {
		got, err := r.Extract(in.Target)
		if err != nil {
			t.Fatalf("Extract(%s): %v", in.Target, err)
		}
		if !bytes.Equal(got, in.Data) {
			t.Fatalf("Extract(%s): data mismatch", in.Target)
		}
	}
}
