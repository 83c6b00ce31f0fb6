// Copyright (c) 2025

// Package reactor provides the core poll-mode event reactor abstraction and
// cross-platform implementations for epoll (Linux) and IOCP (Windows).
//
// internal/wakeup aggregates every interface's wakeup descriptor plus its
// own self-pipe onto one EventReactor: the self-pipe's read end is
// registered with a reserved UserData tag so Wait's caller can tell a
// Signal apart from interface readiness without a second syscall.
package reactor
