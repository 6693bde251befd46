//go:build !linux
// +build !linux

package serial

import "github.com/juju/errors"

func Open(path string, baud int) (Port, error) {
	return nil, errors.NotSupportedf("serial port on this platform")
}
