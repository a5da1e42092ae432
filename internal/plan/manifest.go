package plan

import (
	"bytes"
	"strings"
)

// RenderManifest returns the concat manifest for paths: one
// "file '<path>'" line per segment, in the given order. Single quotes inside
// a path are written as '\'' so the concat demuxer reads them back intact.
func RenderManifest(paths []string) []byte {
	var buf bytes.Buffer
	for _, p := range paths {
		buf.WriteString("file '")
		buf.WriteString(strings.ReplaceAll(p, "'", `'\''`))
		buf.WriteString("'\n")
	}
	return buf.Bytes()
}
