//go:build windows

package printer

import (
	"errors"
	"os"
)

// checkWritable reports whether path exists and is not read-only.
func checkWritable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.Mode().Perm()&0200 == 0 {
		return errors.New("device is read-only")
	}
	return nil
}
