//go:build windows

package cli

import "syscall"

// detachedProcAttr starts the background daemon in a new process group so
// console signals do not reach it.
func detachedProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP}
}
