package launcher

import (
	"strings"
	"testing"

	"github.com/xyproto/pbin/container"
)

func TestDefaultEndsWithMarker(t *testing.T) {
	stub := Default()
	if !strings.HasSuffix(string(stub), container.PayloadMarker) {
		t.Fatal("default launcher must end with the payload marker")
	}
}

func TestDefaultUnderSizeLimit(t *testing.T) {
	if Size() >= 4096 {
		t.Fatalf("stub size %d exceeds 4KB limit", Size())
	}
}

func TestDefaultNotEmpty(t *testing.T) {
	if len(Default()) == 0 {
		t.Fatal("default launcher must not be empty")
	}
}
