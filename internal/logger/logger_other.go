//go:build !darwin && !linux && !windows
// +build !darwin,!linux,!windows

package logger

import "os"

// Without terminal ioctls the best guess is whether the file is a character
// device. Colors stay off since escape support is unknown.
const SupportsColorEscapes = false

func GetTerminalInfo(file *os.File) (info TerminalInfo) {
	if stat, err := file.Stat(); err == nil && stat.Mode()&os.ModeCharDevice != 0 {
		info.IsTTY = true
	}
	return
}

func writeStringWithColor(file *os.File, text string) {
	file.WriteString(text)
}
