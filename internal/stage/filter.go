package stage

import (
	"bytes"
	"path/filepath"
	"strings"
)

// excludedExtensions name units that hold data rather than code.
var excludedExtensions = []string{".json"}

// IsExcluded reports whether the unit at path is never transformed.
func IsExcluded(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range excludedExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// ShouldTransform is the cheap gate in front of the parser. It rejects
// excluded unit kinds, and units in which no marker occurs at all. It may
// accept units that turn out to need no change, but never rejects one that
// would change: every recognised call or module name contains a marker.
func ShouldTransform(path string, text []byte, markers []string) bool {
	if IsExcluded(path) {
		return false
	}
	for _, m := range markers {
		if bytes.Contains(text, []byte(m)) {
			return true
		}
	}
	return false
}
