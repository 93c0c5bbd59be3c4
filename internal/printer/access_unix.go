//go:build !windows

package printer

import "golang.org/x/sys/unix"

// checkWritable asks the kernel whether the device could be opened for
// writing. No bytes are written and the device is not opened.
func checkWritable(path string) error {
	return unix.Access(path, unix.W_OK)
}
