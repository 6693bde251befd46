// Package serial is raw 8N1 UART access for AT command modems.
// Reads never block: modem layer polls for available bytes on its own schedule.
package serial

import (
	"io"
)

type Port interface {
	io.Writer
	// ReadAvailable copies already received bytes into p.
	// Returns 0, nil when nothing is pending.
	ReadAvailable(p []byte) (int, error)
	// Discard drops everything received but not yet read.
	Discard() error
	Close() error
}

var SupportedBaud = []int{9600, 19200, 38400, 57600, 115200}

func baudSupported(baud int) bool {
	for _, b := range SupportedBaud {
		if b == baud {
			return true
		}
	}
	return false
}

type errClosed struct{}

func (errClosed) Error() string { return "serial port closed" }

var ErrClosed error = errClosed{}
