//go:build windows

package window

import (
	"strings"
	"syscall"
	"unsafe"
)

var (
	user32 = syscall.NewLazyDLL("user32.dll")

	procEnumWindows      = user32.NewProc("EnumWindows")
	procGetWindowTextW   = user32.NewProc("GetWindowTextW")
	procIsWindow         = user32.NewProc("IsWindow")
	procIsWindowVisible  = user32.NewProc("IsWindowVisible")
	procGetClientRect    = user32.NewProc("GetClientRect")
	procClientToScreen   = user32.NewProc("ClientToScreen")
	procGetWindowLongPtr = user32.NewProc("GetWindowLongPtrW")
)

// GWL_EXSTYLE is -20; expressed in two's complement for the raw Call.
var gwlExStyle = ^uintptr(19)

const wsExToolWindow = 0x00000080

type rect struct {
	Left, Top, Right, Bottom int32
}

type winLocator struct{}

func newPlatformLocator() Locator {
	return &winLocator{}
}

func (l *winLocator) Find(pattern string) (*Info, error) {
	if pattern == "" {
		return nil, nil
	}
	needle := strings.ToLower(pattern)
	var found *Info
	for _, w := range enumTopLevel() {
		if strings.Contains(strings.ToLower(w.Title), needle) {
			w := w
			found = &w
			break
		}
	}
	return found, nil
}

func (l *winLocator) List() ([]Info, error) {
	return enumTopLevel(), nil
}

// enumTopLevel walks visible top-level windows, skipping tool windows and
// untitled handles, and fills in client-area dimensions.
func enumTopLevel() []Info {
	var windows []Info
	cb := syscall.NewCallback(func(hwnd uintptr, _ uintptr) uintptr {
		visible, _, _ := procIsWindowVisible.Call(hwnd)
		if visible == 0 {
			return 1 // continue enumeration
		}
		exStyle, _, _ := procGetWindowLongPtr.Call(hwnd, gwlExStyle)
		if exStyle&wsExToolWindow != 0 {
			return 1
		}
		title := windowTitle(hwnd)
		if title == "" {
			return 1
		}
		var r rect
		procGetClientRect.Call(hwnd, uintptr(unsafe.Pointer(&r)))
		windows = append(windows, Info{
			Handle: hwnd,
			Title:  title,
			Width:  int(r.Right - r.Left),
			Height: int(r.Bottom - r.Top),
		})
		return 1
	})
	procEnumWindows.Call(cb, 0)
	return windows
}

type point struct {
	X, Y int32
}

// platformBounds resolves the client area of hwnd in screen coordinates.
func platformBounds(hwnd uintptr) (x, y, w, h int, err error) {
	alive, _, _ := procIsWindow.Call(hwnd)
	if alive == 0 {
		return 0, 0, 0, 0, ErrGone
	}
	var r rect
	ok, _, _ := procGetClientRect.Call(hwnd, uintptr(unsafe.Pointer(&r)))
	if ok == 0 {
		return 0, 0, 0, 0, ErrGone
	}
	var origin point
	procClientToScreen.Call(hwnd, uintptr(unsafe.Pointer(&origin)))
	return int(origin.X), int(origin.Y), int(r.Right - r.Left), int(r.Bottom - r.Top), nil
}

func windowTitle(hwnd uintptr) string {
	var buf [512]uint16
	n, _, _ := procGetWindowTextW.Call(hwnd, uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
	if n == 0 {
		return ""
	}
	return syscall.UTF16ToString(buf[:n])
}
