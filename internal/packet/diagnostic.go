package packet

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/cargowatch/telenode/helpers/atomic_clock"
	"github.com/cargowatch/telenode/internal/alert"
	"github.com/cargowatch/telenode/internal/snapshot"
	"github.com/juju/errors"
)

const (
	DefaultDomain      = "ammo_transport"
	DefaultVehicleID   = "VX-21"
	DefaultCompartment = "MAIN_BAY"
	diagnosticType     = "telemetry"
)

type Identity struct {
	DeviceName  string `hcl:"device_name"`
	VehicleID   string `hcl:"vehicle_id"`
	Compartment string `hcl:"compartment"`
	Domain      string `hcl:"domain"`
}

func (self Identity) WithDefaults(deviceID uint8) Identity {
	if self.DeviceName == "" {
		self.DeviceName = fmt.Sprintf("%d", deviceID)
	}
	if self.VehicleID == "" {
		self.VehicleID = DefaultVehicleID
	}
	if self.Compartment == "" {
		self.Compartment = DefaultCompartment
	}
	if self.Domain == "" {
		self.Domain = DefaultDomain
	}
	return self
}

// Diagnostic is local, informational form of one cycle.
// Field order is JSON key order and must stay stable for downstream parsers.
// Missing readings (NaN) are null in JSON.
// TimestampMs is cycle time, CapturedMs is time of last producer update.
type Diagnostic struct {
	Type        string   `json:"type"`
	Domain      string   `json:"domain"`
	VehicleID   string   `json:"vehicle_id"`
	DeviceID    string   `json:"device_id"`
	Compartment string   `json:"compartment"`
	TimestampMs uint32   `json:"timestamp_ms"`
	CapturedMs  uint32   `json:"captured_ms"`
	Sequence    uint16   `json:"seq"`
	TempC       *float64 `json:"temp_c"`
	HumPct      *float64 `json:"hum_pct"`
	Lat         float64  `json:"lat"`
	Lng         float64  `json:"lng"`
	Sats        uint32   `json:"sats"`
	SpeedKmph   *float64 `json:"speed_kmph"`
	AccelG      *float64 `json:"accel_g"`
	Shock       bool     `json:"shock"`
	Moving      bool     `json:"moving"`
	Status      string   `json:"status"`
	Alerts      []string `json:"alerts"`
}

func EncodeDiagnostic(id Identity, now atomic_clock.Millis, seq uint16, s *snapshot.Snapshot, r *alert.Result) Diagnostic {
	d := Diagnostic{
		Type:        diagnosticType,
		Domain:      id.Domain,
		VehicleID:   id.VehicleID,
		DeviceID:    id.DeviceName,
		Compartment: id.Compartment,
		TimestampMs: uint32(now),
		CapturedMs:  uint32(s.CapturedAt),
		Sequence:    seq,
		TempC:       round2(s.TemperatureC),
		HumPct:      round2(s.HumidityPct),
		Lat:         finite(s.Latitude),
		Lng:         finite(s.Longitude),
		Sats:        s.SatelliteCount,
		SpeedKmph:   round2(s.GroundSpeed),
		AccelG:      round2(s.AccelerationG),
		Shock:       s.ShockDetected,
		Moving:      s.IsMoving,
		Status:      string(alert.StatusOK),
		Alerts:      []string{},
	}
	if r != nil {
		d.Status = string(r.Status)
		for _, n := range r.Notifications {
			d.Alerts = append(d.Alerts, n.Text)
		}
	}
	return d
}

// Human is one greppable line in fixed field order.
func (self *Diagnostic) Human() string {
	return fmt.Sprintf(`[TELEMETRY] device=%s seq=%d ts_ms=%d captured_ms=%d temp_c=%s hum_pct=%s lat=%.6f lng=%.6f sats=%d speed_kmph=%s accel_g=%s shock=%d moving=%d status=%s alert="%s"`,
		self.DeviceID, self.Sequence, self.TimestampMs, self.CapturedMs,
		fmtOpt(self.TempC, 1), fmtOpt(self.HumPct, 1),
		self.Lat, self.Lng, self.Sats,
		fmtOpt(self.SpeedKmph, 1), fmtOpt(self.AccelG, 2),
		b01(self.Shock), b01(self.Moving),
		self.Status, strings.Join(self.Alerts, " "))
}

func (self *Diagnostic) JSON() ([]byte, error) {
	b, err := json.Marshal(self)
	return b, errors.Annotate(err, "diagnostic json")
}

func round2(f float32) *float64 {
	if f != f || math.IsInf(float64(f), 0) {
		return nil
	}
	v := math.Round(float64(f)*100) / 100
	return &v
}

func finite(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

func fmtOpt(f *float64, prec int) string {
	if f == nil {
		return "nan"
	}
	return fmt.Sprintf("%.*f", prec, *f)
}

func b01(b bool) int {
	if b {
		return 1
	}
	return 0
}
