package delivery

import (
	"encoding/binary"
	"sync/atomic"

	"github.com/juju/errors"
)

// Sequence is uplink packet counter, wraps at 65536.
// Safe for concurrent use, persisted through MarshalBinary.
type Sequence struct{ v uint32 }

// Next returns current value and advances.
func (self *Sequence) Next() uint16 {
	return uint16(atomic.AddUint32(&self.v, 1) - 1)
}

func (self *Sequence) Peek() uint16 { return uint16(atomic.LoadUint32(&self.v)) }
func (self *Sequence) Set(v uint16) { atomic.StoreUint32(&self.v, uint32(v)) }

func (self *Sequence) MarshalBinary() ([]byte, error) {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, self.Peek())
	return b, nil
}

func (self *Sequence) UnmarshalBinary(b []byte) error {
	if len(b) != 2 {
		return errors.NotValidf("sequence len=%d", len(b))
	}
	self.Set(binary.BigEndian.Uint16(b))
	return nil
}
