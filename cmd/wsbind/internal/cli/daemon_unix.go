//go:build unix

package cli

import "syscall"

// detachedProcAttr starts the background daemon in its own session so it
// outlives the terminal.
func detachedProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setsid: true}
}
