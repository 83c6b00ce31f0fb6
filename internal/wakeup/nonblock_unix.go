//go:build unix

package wakeup

import (
	"os"

	"golang.org/x/sys/unix"
)

func setNonblock(f *os.File) error {
	return unix.SetNonblock(int(f.Fd()), true)
}
