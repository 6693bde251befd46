// Package packet encodes snapshots into the compact uplink record
// and the local diagnostic lines.
package packet

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"

	"github.com/cargowatch/telenode/helpers"
	"github.com/cargowatch/telenode/internal/snapshot"
	"github.com/juju/errors"
)

// Wire layout, little-endian, no padding:
// device_id u8 | latitude i32 | longitude i32 | temperature u8 | humidity u8 | flags u8 | sequence u16
const (
	Length = 14

	offDevice   = 0
	offLat      = 1
	offLng      = 5
	offTemp     = 9
	offHum      = 10
	offFlags    = 11
	offSequence = 12

	FixedScale = 100000
)

type Flags uint8

const (
	FlagShock Flags = 1 << iota
	FlagMoving
)

func MakeFlags(shock, moving bool) Flags {
	var f Flags
	if shock {
		f |= FlagShock
	}
	if moving {
		f |= FlagMoving
	}
	return f
}

func (f Flags) Shock() bool  { return f&FlagShock != 0 }
func (f Flags) Moving() bool { return f&FlagMoving != 0 }

type TelemetryPacket struct {
	DeviceID       uint8
	LatitudeFixed  int32
	LongitudeFixed int32
	TemperatureU8  uint8
	HumidityU8     uint8
	Flags          Flags
	SequenceID     uint16
}

// EncodeBinary never fails, out of range values saturate.
func EncodeBinary(s *snapshot.Snapshot, flags Flags, deviceID uint8, seq uint16) TelemetryPacket {
	return TelemetryPacket{
		DeviceID:       deviceID,
		LatitudeFixed:  DegreesToFixed(s.Latitude),
		LongitudeFixed: DegreesToFixed(s.Longitude),
		TemperatureU8:  SaturateU8(s.TemperatureC),
		HumidityU8:     SaturateU8(s.HumidityPct),
		Flags:          flags,
		SequenceID:     seq,
	}
}

// DegreesToFixed rounds to nearest 1e-5 degree, clamps to int32, NaN is 0.
func DegreesToFixed(deg float64) int32 {
	if math.IsNaN(deg) {
		return 0
	}
	v := math.Round(deg * FixedScale)
	switch {
	case v >= math.MaxInt32:
		return math.MaxInt32
	case v <= math.MinInt32:
		return math.MinInt32
	}
	return int32(v)
}

func FixedToDegrees(v int32) float64 { return float64(v) / FixedScale }

// SaturateU8 rounds and clamps to [0,255], NaN is 0.
func SaturateU8(f float32) uint8 {
	if f != f {
		return 0
	}
	v := math.Round(float64(f))
	switch {
	case v <= 0:
		return 0
	case v >= math.MaxUint8:
		return math.MaxUint8
	}
	return uint8(v)
}

func (self *TelemetryPacket) Bytes() []byte {
	b := make([]byte, Length)
	b[offDevice] = self.DeviceID
	binary.LittleEndian.PutUint32(b[offLat:], uint32(self.LatitudeFixed))
	binary.LittleEndian.PutUint32(b[offLng:], uint32(self.LongitudeFixed))
	b[offTemp] = self.TemperatureU8
	b[offHum] = self.HumidityU8
	b[offFlags] = uint8(self.Flags)
	binary.LittleEndian.PutUint16(b[offSequence:], self.SequenceID)
	return b
}

func (self TelemetryPacket) MarshalBinary() ([]byte, error) { return self.Bytes(), nil }

func (self *TelemetryPacket) UnmarshalBinary(b []byte) error {
	if len(b) != Length {
		return errors.NotValidf("packet length=%d expected=%d", len(b), Length)
	}
	*self = TelemetryPacket{
		DeviceID:       b[offDevice],
		LatitudeFixed:  int32(binary.LittleEndian.Uint32(b[offLat:])),
		LongitudeFixed: int32(binary.LittleEndian.Uint32(b[offLng:])),
		TemperatureU8:  b[offTemp],
		HumidityU8:     b[offHum],
		Flags:          Flags(b[offFlags]),
		SequenceID:     binary.LittleEndian.Uint16(b[offSequence:]),
	}
	return nil
}

// Hex is transport framing: two upper case digits per byte, no separators.
func (self *TelemetryPacket) Hex() string { return helpers.UpperHex(self.Bytes()) }

func (self *TelemetryPacket) Latitude() float64  { return FixedToDegrees(self.LatitudeFixed) }
func (self *TelemetryPacket) Longitude() float64 { return FixedToDegrees(self.LongitudeFixed) }

func (self *TelemetryPacket) String() string {
	return fmt.Sprintf("device=%d seq=%d lat=%.5f lng=%.5f temp=%d hum=%d shock=%t moving=%t",
		self.DeviceID, self.SequenceID, self.Latitude(), self.Longitude(),
		self.TemperatureU8, self.HumidityU8, self.Flags.Shock(), self.Flags.Moving())
}

func Decode(b []byte) (TelemetryPacket, error) {
	p := TelemetryPacket{}
	err := p.UnmarshalBinary(b)
	return p, errors.Trace(err)
}

// DecodeHex accepts any letter case.
func DecodeHex(s string) (TelemetryPacket, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return TelemetryPacket{}, errors.Annotate(err, "packet hex")
	}
	return Decode(b)
}
