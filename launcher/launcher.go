// Package launcher provides the minimal default polyglot stub that
// precedes a PBIN container. Real shell/batch detection and process
// execution are an external concern; this default only guarantees the
// payload marker invariant so container output is exercisable end to end.
package launcher

import "github.com/xyproto/pbin/container"

// defaultTemplate is a placeholder polyglot stub. It is valid as a POSIX
// shell script and documents, rather than implements, the platform
// detection and extraction steps a real launcher performs.
const defaultTemplate = `#!/bin/sh
# PBIN self-extracting launcher placeholder.
#
# A real launcher detects the host OS/arch, scans this file for the last
# occurrence of the payload marker below, reads the header and manifest
# that follow it, extracts the matching entry, and execs it with $@.
echo "pbin: this artifact has no extraction logic wired into its launcher" >&2
exit 1
` + container.PayloadMarker

// Default returns the default launcher stub, ending in the payload marker.
func Default() []byte {
	return []byte(defaultTemplate)
}

// Size reports the length of the default stub in bytes.
func Size() int {
	return len(defaultTemplate)
}
