package main

import "strings"

// vkFromCode maps a KeyboardEvent.code onto a Windows virtual-key code so
// the push-to-talk key chosen in the UI can be watched globally
func vkFromCode(code string) (uint32, bool) {
	switch {
	case len(code) == 4 && strings.HasPrefix(code, "Key") && code[3] >= 'A' && code[3] <= 'Z':
		return uint32(code[3]), true
	case len(code) == 6 && strings.HasPrefix(code, "Digit") && code[5] >= '0' && code[5] <= '9':
		return uint32(code[5]), true
	case len(code) == 7 && strings.HasPrefix(code, "Numpad") && code[6] >= '0' && code[6] <= '9':
		return 0x60 + uint32(code[6]-'0'), true
	case strings.HasPrefix(code, "F") && len(code) <= 3:
		n := 0
		for _, c := range code[1:] {
			if c < '0' || c > '9' {
				return 0, false
			}
			n = n*10 + int(c-'0')
		}
		if n < 1 || n > 24 {
			return 0, false
		}
		return 0x70 + uint32(n-1), true
	}

	vk, ok := namedKeys[code]
	return vk, ok
}

var namedKeys = map[string]uint32{
	"Backquote":    0xC0,
	"Backslash":    0xDC,
	"BracketLeft":  0xDB,
	"BracketRight": 0xDD,
	"CapsLock":     0x14,
	"Comma":        0xBC,
	"Equal":        0xBB,
	"Minus":        0xBD,
	"Period":       0xBE,
	"Quote":        0xDE,
	"Semicolon":    0xBA,
	"Slash":        0xBF,
	"Space":        0x20,
	"Tab":          0x09,
	"AltLeft":      0xA4,
	"AltRight":     0xA5,
	"ControlLeft":  0xA2,
	"ControlRight": 0xA3,
	"ShiftLeft":    0xA0,
	"ShiftRight":   0xA1,
	"Insert":       0x2D,
	"Delete":       0x2E,
	"Home":         0x24,
	"End":          0x23,
	"PageUp":       0x21,
	"PageDown":     0x22,
	"ArrowUp":      0x26,
	"ArrowDown":    0x28,
	"ArrowLeft":    0x25,
	"ArrowRight":   0x27,
}
