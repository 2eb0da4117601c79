//go:build windows

package main

import (
	"os"
	"runtime"
	"sync/atomic"
	"syscall"
	"unsafe"

	"go.uber.org/zap"
)

var (
	user32                = syscall.NewLazyDLL("user32.dll")
	procSetWindowsHookEx  = user32.NewProc("SetWindowsHookExW")
	procCallNextHookEx    = user32.NewProc("CallNextHookEx")
	procGetMessage        = user32.NewProc("GetMessageW")
	procUnhookWindowsHook = user32.NewProc("UnhookWindowsHookEx")
	procGetForeground     = user32.NewProc("GetForegroundWindow")
	procGetWindowPID      = user32.NewProc("GetWindowThreadProcessId")
)

const (
	WH_KEYBOARD_LL = 13
	WM_KEYDOWN     = 0x0100
	WM_KEYUP       = 0x0101
	WM_SYSKEYDOWN  = 0x0104
	WM_SYSKEYUP    = 0x0105
)

// KBDLLHOOKSTRUCT contains information about a low-level keyboard input event
type KBDLLHOOKSTRUCT struct {
	VkCode      uint32
	ScanCode    uint32
	Flags       uint32
	Time        uint32
	DwExtraInfo uintptr
}

type MSG struct {
	HWND    uintptr
	Message uint32
	WParam  uintptr
	LParam  uintptr
	Time    uint32
	Pt      struct{ X, Y int32 }
}

type keyEvent struct {
	code string
	down bool
}

var (
	keyboardHook uintptr
	pttVK        atomic.Uint32
	pttCode      atomic.Value // string
	keyEvents    = make(chan keyEvent, 16)
)

// setPushToTalkKey changes the key watched by the hook
func setPushToTalkKey(code string) {
	vk, ok := vkFromCode(code)
	if !ok {
		vk = 0
	}
	pttCode.Store(code)
	pttVK.Store(vk)
}

// keyboardProc is the low-level keyboard hook callback. It never blocks
// and never swallows the key.
func keyboardProc(nCode int, wParam uintptr, lParam uintptr) uintptr {
	if nCode >= 0 {
		kb := (*KBDLLHOOKSTRUCT)(unsafe.Pointer(lParam))
		if vk := pttVK.Load(); vk != 0 && kb.VkCode == vk {
			code, _ := pttCode.Load().(string)
			switch wParam {
			case WM_KEYDOWN, WM_SYSKEYDOWN:
				if ownsForeground() {
					sendKey(keyEvent{code: code, down: true})
				}
			case WM_KEYUP, WM_SYSKEYUP:
				sendKey(keyEvent{code: code, down: false})
			}
		}
	}
	ret, _, _ := procCallNextHookEx.Call(keyboardHook, uintptr(nCode), wParam, lParam)
	return ret
}

// ownsForeground reports whether the focused window belongs to this process.
// Releases are always forwarded so the gate closes after a focus change.
func ownsForeground() bool {
	hwnd, _, _ := procGetForeground.Call()
	if hwnd == 0 {
		return false
	}
	var pid uint32
	procGetWindowPID.Call(hwnd, uintptr(unsafe.Pointer(&pid)))
	return int(pid) == os.Getpid()
}

func sendKey(ev keyEvent) {
	select {
	case keyEvents <- ev:
	default:
	}
}

// RegisterPushToTalkHook installs a low-level keyboard hook so push-to-talk
// works while the game has focus
func (a *App) RegisterPushToTalkHook() {
	setPushToTalkKey(a.pipeline.Settings().PTTKey)

	go func() {
		for {
			select {
			case <-a.ctx.Done():
				return
			case ev := <-keyEvents:
				if ev.down {
					a.pipeline.KeyDown(ev.code)
				} else {
					a.pipeline.KeyUp(ev.code)
				}
			}
		}
	}()

	go func() {
		// hooks are bound to the installing thread's message loop
		runtime.LockOSThread()
		callback := syscall.NewCallback(keyboardProc)

		ret, _, err := procSetWindowsHookEx.Call(WH_KEYBOARD_LL, callback, 0, 0)
		if ret == 0 {
			a.log.Warn("failed to install keyboard hook", zap.Error(err))
			return
		}
		keyboardHook = ret
		defer procUnhookWindowsHook.Call(keyboardHook)
		a.log.Info("installed push-to-talk keyboard hook")

		// Message loop to keep the hook alive
		var msg MSG
		for {
			ret, _, _ := procGetMessage.Call(uintptr(unsafe.Pointer(&msg)), 0, 0, 0)
			if ret == 0 || int32(ret) == -1 {
				break
			}
		}
	}()
}
