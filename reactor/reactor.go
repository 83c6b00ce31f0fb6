// File: reactor/reactor.go
//
// Platform-neutral event reactor interface. internal/wakeup.Multiplexer is
// the only caller: it builds one EventReactor lazily per worker and
// registers the worker's self-pipe alongside every interface's wakeup
// descriptor on it, so a single blocking Wait covers both.

package reactor

// EventReactor defines basic reactor operations across OS platforms.
type EventReactor interface {
	// Register an FD (epoll) or HANDLE (Windows) for IO notifications.
	Register(fd uintptr, userData uintptr) error

	// Wait blocks until events are available and writes into the output slice.
	// Returns number of events written or an error.
	Wait(events []Event) (n int, err error)

	// Close cleans up resources (handle/epfd).
	Close() error
}

// Event contains event information returned by Wait call. UserData carries
// back whatever value was passed to Register, which is how a caller
// aggregating several descriptors onto one reactor tells them apart.
type Event struct {
	Fd       uintptr // File descriptor or handle.
	UserData uintptr // User-provided data.
}
