package mirror

import (
	"sync"

	"github.com/juju/errors"
)

// Public API to easy create publisher stubs.
type MockPublisher struct {
	sync.Mutex
	// FailFirst publishes fail until counter reaches zero.
	FailFirst int
	Sent      [][]byte
	Attempts  int
	Connected bool
	Closed    bool
	Ch        chan []byte
}

func NewMockPublisher(failFirst int) *MockPublisher {
	return &MockPublisher{FailFirst: failFirst, Ch: make(chan []byte, 16)}
}

func (self *MockPublisher) Connect() error {
	self.Lock()
	self.Connected = true
	self.Unlock()
	return nil
}

func (self *MockPublisher) Publish(b []byte) error {
	self.Lock()
	defer self.Unlock()
	self.Attempts++
	if self.FailFirst > 0 {
		self.FailFirst--
		return errors.New("mock broker unavailable")
	}
	c := append([]byte(nil), b...)
	self.Sent = append(self.Sent, c)
	select {
	case self.Ch <- c:
	default:
	}
	return nil
}

func (self *MockPublisher) Close() {
	self.Lock()
	self.Closed = true
	self.Unlock()
}
