//go:build !windows

package recording

import "github.com/google/renameio/v2"

// writeFileAtomic writes to a temp file, fsyncs it and renames it into place.
func writeFileAtomic(path string, data []byte) error {
	return renameio.WriteFile(path, data, 0644)
}
