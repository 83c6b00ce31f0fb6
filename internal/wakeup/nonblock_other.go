//go:build !unix

package wakeup

import "os"

// setNonblock is a no-op outside unix: anonymous pipes created by os.Pipe
// on Windows have no equivalent of fcntl's O_NONBLOCK, and the aggregating
// reactor's Windows backend (IOCP) does not register this pipe the way
// epoll does.
func setNonblock(f *os.File) error { return nil }
