//go:build !(linux || darwin)

package sys

import "math"

func PageSize() int {
	return 4096
}

// FreeSpace is not measured on this platform.
func FreeSpace(dir string) (uint64, error) {
	return math.MaxUint64, nil
}

// SyncDir is a no-op where directories cannot be synced.
func SyncDir(dir string) error {
	return nil
}
