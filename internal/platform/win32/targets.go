//go:build windows

package win32

import (
	"fmt"
	"image"
	"strings"
	"sync"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/framescope/framescope/internal/platform"
)

type monitorInfo struct {
	size    uint32
	monitor rect
	work    rect
	flags   uint32
}

// item is a resolved capture target: an HWND for windows, an HMONITOR plus
// its virtual-screen origin for monitors.
type item struct {
	hwnd     uintptr
	hmonitor uintptr
	origin   image.Point

	mu     sync.Mutex
	cbs    map[platform.Token]func()
	nextID platform.Token
}

// alive reports whether the target handle is still valid. Monitors are
// assumed to outlive the session.
func (it *item) alive() bool {
	if it.hwnd == 0 {
		return true
	}
	ret, _, _ := procIsWindow.Call(it.hwnd)
	return ret != 0
}

func (it *item) Size() (platform.Size, error) {
	if it.hwnd != 0 {
		var r rect
		ret, _, _ := procGetClientRect.Call(it.hwnd, uintptr(unsafe.Pointer(&r)))
		if ret == 0 {
			return platform.Size{}, fmt.Errorf("win32: GetClientRect failed: %w", platform.ErrTargetInvalid)
		}
		return platform.Size{Width: int(r.right - r.left), Height: int(r.bottom - r.top)}, nil
	}

	mi := monitorInfo{size: uint32(unsafe.Sizeof(monitorInfo{}))}
	ret, _, _ := procGetMonitorInfoW.Call(it.hmonitor, uintptr(unsafe.Pointer(&mi)))
	if ret == 0 {
		return platform.Size{}, fmt.Errorf("win32: GetMonitorInfoW failed: %w", platform.ErrTargetInvalid)
	}
	return platform.Size{
		Width:  int(mi.monitor.right - mi.monitor.left),
		Height: int(mi.monitor.bottom - mi.monitor.top),
	}, nil
}

func (it *item) Closed(fn func()) (platform.Token, error) {
	it.mu.Lock()
	defer it.mu.Unlock()
	if it.cbs == nil {
		it.cbs = make(map[platform.Token]func())
	}
	it.nextID++
	it.cbs[it.nextID] = fn
	return it.nextID, nil
}

func (it *item) RemoveClosed(tok platform.Token) {
	it.mu.Lock()
	defer it.mu.Unlock()
	delete(it.cbs, tok)
}

// fireClosed invokes the registered callbacks. Runs on the capture thread.
func (it *item) fireClosed() {
	it.mu.Lock()
	cbs := make([]func(), 0, len(it.cbs))
	for _, fn := range it.cbs {
		cbs = append(cbs, fn)
	}
	it.mu.Unlock()
	for _, fn := range cbs {
		fn()
	}
}

// Resolve maps a target spec to a win32 handle. Monitor index 0 selects the
// primary monitor; windows match by exact title first, then substring.
func (b *Backend) Resolve(spec platform.TargetSpec) (platform.Item, error) {
	switch spec.Kind {
	case platform.TargetMonitor:
		mons := enumMonitors()
		if len(mons) == 0 {
			return nil, fmt.Errorf("win32: no monitors: %w", platform.ErrTargetNotFound)
		}
		if spec.Monitor == 0 {
			for _, m := range mons {
				if m.primary {
					return &item{hmonitor: m.handle, origin: m.origin}, nil
				}
			}
			return &item{hmonitor: mons[0].handle, origin: mons[0].origin}, nil
		}
		if spec.Monitor < 1 || spec.Monitor > len(mons) {
			return nil, fmt.Errorf("win32: monitor %d: %w", spec.Monitor, platform.ErrTargetNotFound)
		}
		m := mons[spec.Monitor-1]
		return &item{hmonitor: m.handle, origin: m.origin}, nil

	case platform.TargetWindow:
		hwnd, err := findWindowByTitle(spec.WindowTitle)
		if err != nil {
			return nil, err
		}
		return &item{hwnd: hwnd}, nil

	default:
		return nil, fmt.Errorf("win32: unknown target kind %q", spec.Kind)
	}
}

type monitorEntry struct {
	handle  uintptr
	origin  image.Point
	size    platform.Size
	primary bool
}

const monitorInfoPrimary = 0x1

// enumMonitors walks the display monitors in enumeration order.
func enumMonitors() []monitorEntry {
	var mons []monitorEntry
	cb := syscall.NewCallback(func(hmonitor, hdc uintptr, lprc *rect, lparam uintptr) uintptr {
		mi := monitorInfo{size: uint32(unsafe.Sizeof(monitorInfo{}))}
		if ret, _, _ := procGetMonitorInfoW.Call(hmonitor, uintptr(unsafe.Pointer(&mi))); ret != 0 {
			mons = append(mons, monitorEntry{
				handle: hmonitor,
				origin: image.Point{X: int(mi.monitor.left), Y: int(mi.monitor.top)},
				size: platform.Size{
					Width:  int(mi.monitor.right - mi.monitor.left),
					Height: int(mi.monitor.bottom - mi.monitor.top),
				},
				primary: mi.flags&monitorInfoPrimary != 0,
			})
		}
		return 1 // continue
	})
	procEnumDisplayMonitors.Call(0, 0, cb, 0)
	return mons
}

// Monitors enumerates the display monitors, primary first flagged by index 1.
func (b *Backend) Monitors() ([]platform.TargetInfo, error) {
	mons := enumMonitors()
	infos := make([]platform.TargetInfo, 0, len(mons))
	for i, m := range mons {
		infos = append(infos, platform.TargetInfo{
			Kind:    platform.TargetMonitor,
			Monitor: i + 1,
			Size:    m.size,
		})
	}
	return infos, nil
}

// Windows enumerates capturable top-level windows: visible, titled, not a
// child, not a tool window, and not owned by this process.
func (b *Backend) Windows() ([]platform.TargetInfo, error) {
	var infos []platform.TargetInfo
	cb := syscall.NewCallback(func(hwnd, lparam uintptr) uintptr {
		if !validCaptureWindow(hwnd) {
			return 1
		}
		title := windowTitle(hwnd)
		if title == "" {
			return 1
		}
		var r rect
		if ret, _, _ := procGetClientRect.Call(hwnd, uintptr(unsafe.Pointer(&r))); ret == 0 {
			return 1
		}
		infos = append(infos, platform.TargetInfo{
			Kind:  platform.TargetWindow,
			Title: title,
			Size:  platform.Size{Width: int(r.right - r.left), Height: int(r.bottom - r.top)},
		})
		return 1
	})
	procEnumWindows.Call(cb, 0)
	return infos, nil
}

// validCaptureWindow applies the standard filters: visible, top-level, not a
// tool window, and in another process (self-capture feeds back the viewer).
func validCaptureWindow(hwnd uintptr) bool {
	if ret, _, _ := procIsWindowVisible.Call(hwnd); ret == 0 {
		return false
	}
	if getWindowLongPtr(hwnd, gwlStyle)&wsChild != 0 {
		return false
	}
	if getWindowLongPtr(hwnd, gwlExStyle)&wsExToolWin != 0 {
		return false
	}
	var pid uint32
	procGetWindowThreadProcID.Call(hwnd, uintptr(unsafe.Pointer(&pid)))
	return pid != windows.GetCurrentProcessId()
}

// getWindowLongPtr passes the (negative) index through a 32-bit register the
// way the C prototype expects.
func getWindowLongPtr(hwnd uintptr, index int32) uintptr {
	ret, _, _ := procGetWindowLongPtrW.Call(hwnd, uintptr(uint32(index)))
	return ret
}

func windowTitle(hwnd uintptr) string {
	n, _, _ := procGetWindowTextLengthW.Call(hwnd)
	if n == 0 {
		return ""
	}
	buf := make([]uint16, n+1)
	procGetWindowTextW.Call(hwnd, uintptr(unsafe.Pointer(&buf[0])), n+1)
	return windows.UTF16ToString(buf)
}

func findWindowByTitle(title string) (uintptr, error) {
	// Exact match goes through FindWindowW first; it is cheaper and matches
	// the common case.
	if p, err := windows.UTF16PtrFromString(title); err == nil {
		if hwnd, _, _ := procFindWindowW.Call(0, uintptr(unsafe.Pointer(p))); hwnd != 0 && validCaptureWindow(hwnd) {
			return hwnd, nil
		}
	}

	var exact, substr uintptr
	cb := syscall.NewCallback(func(hwnd, lparam uintptr) uintptr {
		if !validCaptureWindow(hwnd) {
			return 1
		}
		t := windowTitle(hwnd)
		if t == "" {
			return 1
		}
		if t == title {
			exact = hwnd
			return 0 // stop
		}
		if substr == 0 && strings.Contains(t, title) {
			substr = hwnd
		}
		return 1
	})
	procEnumWindows.Call(cb, 0)

	if exact != 0 {
		return exact, nil
	}
	if substr != 0 {
		return substr, nil
	}
	return 0, fmt.Errorf("win32: window %q: %w", title, platform.ErrTargetNotFound)
}
