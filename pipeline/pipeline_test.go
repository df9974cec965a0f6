package pipeline

import "testing"

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

func TestCompressAllEmpty(t *testing.T) {
	result, err := CompressAll(DefaultConfig(), nil, nil)
	if err != nil {
		t.Fatalf("CompressAll: %v", err)
	}
	if len(result.Entries) != 0 {
		t.Fatalf("expected no entries, got %d", len(result.Entries))
	}
}

func TestCompressAllPreservesInputOrder(t *testing.T) {
	inputs := []Input{
		{Target: "linux-x86_64", Data: makeBinary(1)},
		{Target: "darwin-x86_64", Data: makeBinary(2)},
		{Target: "linux-aarch64", Data: makeBinary(3)},
		{Target: "darwin-aarch64", Data: makeBinary(4)},
	}
	result, err := CompressAll(DefaultConfig(), inputs, nil)
	if err != nil {
		t.Fatalf("CompressAll: %v", err)
	}
	if len(result.Entries) != len(inputs) {
		t.Fatalf("expected %d entries, got %d", len(inputs), len(result.Entries))
	}
	for i, e := range result.Entries {
		if e.Target != inputs[i].Target {
			t.Fatalf("entry %d target = %q, want %q (order must match input order)", i, e.Target, inputs[i].Target)
		}
	}
}

func TestCompressAllStatsConsistent(t *testing.T) {
	inputs := []Input{
		{Target: "linux-x86_64", Data: makeBinary(1)},
		{Target: "darwin-x86_64", Data: makeBinary(2)},
	}
	result, err := CompressAll(DefaultConfig(), inputs, nil)
	if err != nil {
		t.Fatalf("CompressAll: %v", err)
	}
	want := 0
	for _, in := range inputs {
		want += len(in.Data)
	}
	if result.Stats.OriginalSize != want {
		t.Fatalf("OriginalSize = %d, want %d", result.Stats.OriginalSize, want)
	}
}

func TestCompressAllNoBCJNoDeltaNoDict(t *testing.T) {
	cfg := Config{Level: Fast}
	inputs := []Input{
		{Target: "linux-x86_64", Data: makeBinary(1)},
		{Target: "darwin-x86_64", Data: makeBinary(2)},
	}
	result, err := CompressAll(cfg, inputs, nil)
	if err != nil {
		t.Fatalf("CompressAll: %v", err)
	}
	for _, e := range result.Entries {
		if e.BCJFiltered {
			t.Fatal("BCJ should be disabled")
		}
		if e.DeltaReference != "" {
			t.Fatal("delta should be disabled")
		}
	}
	if result.Stats.DictTrained {
		t.Fatal("dictionary training should be disabled")
	}
}
