//go:build !windows

package encoder

import "syscall"

func procAttr() *syscall.SysProcAttr {
	return nil
}
