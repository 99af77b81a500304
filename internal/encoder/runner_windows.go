//go:build windows

package encoder

import (
	"golang.org/x/sys/windows"
	"syscall"
)

// procAttr hides the subprocess's console window. Without this every capture
// session flashes a console on screen.
func procAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		HideWindow:    true,
		CreationFlags: windows.CREATE_NO_WINDOW,
	}
}
