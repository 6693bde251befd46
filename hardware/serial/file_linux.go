//go:build linux
// +build linux

package serial

import (
	"github.com/juju/errors"
	"golang.org/x/sys/unix"
)

var baudFlags = map[int]uint32{
	9600:   unix.B9600,
	19200:  unix.B19200,
	38400:  unix.B38400,
	57600:  unix.B57600,
	115200: unix.B115200,
}

type filePort struct {
	fd   int
	path string
}

// Open configures tty at path as raw 8N1 without flow control.
func Open(path string, baud int) (Port, error) {
	if !baudSupported(baud) {
		return nil, errors.NotSupportedf("baud=%d", baud)
	}
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0600)
	if err != nil {
		return nil, errors.Annotatef(err, "serial open %s", path)
	}
	self := &filePort{fd: fd, path: path}
	if err = self.resetTermios(baud); err != nil {
		_ = unix.Close(fd)
		return nil, errors.Annotatef(err, "serial termios %s", path)
	}
	if err = self.Discard(); err != nil {
		_ = unix.Close(fd)
		return nil, errors.Trace(err)
	}
	return self, nil
}

func (self *filePort) resetTermios(baud int) error {
	t, err := unix.IoctlGetTermios(self.fd, unix.TCGETS)
	if err != nil {
		return errors.Trace(err)
	}
	flag := baudFlags[baud]
	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON | unix.IXOFF | unix.IXANY
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB | unix.CSTOPB | unix.CRTSCTS | unix.CBAUD
	t.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL | flag
	t.Ispeed = flag
	t.Ospeed = flag
	t.Cc[unix.VMIN] = 0
	t.Cc[unix.VTIME] = 0
	return errors.Trace(unix.IoctlSetTermios(self.fd, unix.TCSETS, t))
}

func (self *filePort) Write(p []byte) (int, error) {
	total := 0
	for total < len(p) {
		n, err := unix.Write(self.fd, p[total:])
		if err == unix.EAGAIN || err == unix.EINTR {
			continue
		}
		if err != nil {
			return total, errors.Annotatef(err, "serial write %s", self.path)
		}
		total += n
	}
	return total, nil
}

func (self *filePort) ReadAvailable(p []byte) (int, error) {
	pending, err := unix.IoctlGetInt(self.fd, unix.TIOCINQ)
	if err != nil {
		return 0, errors.Annotatef(err, "serial TIOCINQ %s", self.path)
	}
	if pending == 0 || len(p) == 0 {
		return 0, nil
	}
	if pending < len(p) {
		p = p[:pending]
	}
	n, err := unix.Read(self.fd, p)
	if err == unix.EAGAIN || err == unix.EINTR {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Annotatef(err, "serial read %s", self.path)
	}
	return n, nil
}

func (self *filePort) Discard() error {
	return errors.Trace(unix.IoctlSetInt(self.fd, unix.TCFLSH, unix.TCIFLUSH))
}

func (self *filePort) Close() error { return unix.Close(self.fd) }
