package recorder

import (
	"sort"
	"strings"
	"time"
)

// session is the runtime state of one recording attempt. Created when
// capture actually starts, discarded on stop.
type session struct {
	startedAt time.Time
	dest      string
	done      chan struct{}
}

// buildFilename derives the output file name from caller-supplied metadata
// (map name, game mode and the like) plus a timestamp. Metadata values are
// sanitized and joined in key order so the result is deterministic; when
// nothing survives sanitization the name falls back to "capture".
func buildFilename(metadata map[string]string, now time.Time) string {
	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		if v := sanitize(metadata[k]); v != "" {
			parts = append(parts, v)
		}
	}
	base := strings.Join(parts, "_")
	if base == "" {
		base = "capture"
	}
	return base + "_" + now.Format("20060102-150405") + ".mp4"
}

// sanitize strips everything outside [A-Za-z0-9._-] so metadata can never
// produce a hostile or invalid path component.
func sanitize(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '_' || r == '-':
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), ".")
}
