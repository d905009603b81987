//go:build !windows

package chat

import "syscall"

var errnoAddressInUse error = syscall.EADDRINUSE
