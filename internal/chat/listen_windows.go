//go:build windows

package chat

import "syscall"

// WSAEADDRINUSE, the syscall package does not name it
var errnoAddressInUse error = syscall.Errno(10048)
