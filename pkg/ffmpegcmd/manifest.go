package ffmpegcmd

import (
	"fmt"
	"strings"

	"github.com/google/renameio/v2"
)

// unsafeManifestChars are characters the concat manifest cannot carry reliably.
// A single quote would terminate the quoted path; newlines would split an entry.
const unsafeManifestChars = "'\n\r"

// FilterAudio splits paths into the entries safe for the concat manifest and the
// ones dropped. Empty entries are dropped as well. Order is preserved.
func FilterAudio(paths []string) (kept, dropped []string) {
	kept = make([]string, 0, len(paths))
	for _, p := range paths {
		if strings.TrimSpace(p) == "" || strings.ContainsAny(p, unsafeManifestChars) {
			dropped = append(dropped, p)
			continue
		}
		kept = append(kept, p)
	}
	return kept, dropped
}

// ManifestLine renders one concat-demuxer entry: file '<path>' with embedded
// single quotes escaped as '\''.
func ManifestLine(path string) string {
	return "file '" + strings.ReplaceAll(path, "'", `'\''`) + "'"
}

// RenderManifest renders entries as concat-demuxer manifest content, one entry per line.
func RenderManifest(entries []string) string {
	var b strings.Builder
	for _, e := range entries {
		b.WriteString(ManifestLine(e))
		b.WriteByte('\n')
	}
	return b.String()
}

// WriteManifest atomically replaces the manifest at path with entries.
// The previous manifest, if any, stays intact until the new one is fully written.
func WriteManifest(path string, entries []string) error {
	if err := renameio.WriteFile(path, []byte(RenderManifest(entries)), 0o644); err != nil {
		return fmt.Errorf("write manifest %s: %w", path, err)
	}
	return nil
}
