//go:build windows

package recording

import "os"

// renameio does not support Windows; the sidecar is written in place.
func writeFileAtomic(path string, data []byte) error {
	return os.WriteFile(path, data, 0644)
}
