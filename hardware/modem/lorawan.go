package modem

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cargowatch/telenode/helpers"
	"github.com/juju/errors"
)

const (
	DefaultJoinTimeout  = 20 * time.Second
	DefaultJoinTrials   = 8
	DefaultJoinInterval = 8 // seconds
	joinAckTimeout      = 800 * time.Millisecond
	downlinkSettle      = 50 * time.Millisecond
)

var joinTokens = []string{"JOINED", "ACCEPTED"}

// Init wakes module with bare AT.
func (self *Modem) Init(ctx context.Context) error {
	_, err := self.Command(ctx, "AT", self.token, self.attemptTimeout)
	return errors.Annotate(err, "modem init")
}

// SetRegion fails on firmware without AT+CREGION, callers usually ignore that.
func (self *Modem) SetRegion(ctx context.Context, region string) error {
	_, err := self.Command(ctx, "AT+CREGION="+region, self.token, self.attemptTimeout)
	return errors.Annotatef(err, "modem region=%s", region)
}

// SetKeys configures OTAA identity and class A.
// All commands are sent even if some fail.
func (self *Modem) SetKeys(ctx context.Context, devEUI, appEUI, appKey string) error {
	cmds := []string{
		"AT+CDEVEUI=" + devEUI,
		"AT+CAPPEUI=" + appEUI,
		"AT+CAPPKEY=" + appKey,
		"AT+CCLASS=0",
	}
	errs := make([]error, 0, len(cmds))
	for _, cmd := range cmds {
		if _, err := self.Command(ctx, cmd, self.token, self.attemptTimeout); err != nil {
			errs = append(errs, errors.Annotatef(err, "modem cmd=%s", cmd))
		}
	}
	return helpers.FoldErrors(errs)
}

// Join starts OTAA join: AT+CJOIN=<mode>,<auto_tx>,<trials>,<interval_sec>
// then waits for JOINED or ACCEPTED.
func (self *Modem) Join(ctx context.Context, trials, intervalSec int, timeout time.Duration) error {
	cmd := fmt.Sprintf("AT+CJOIN=1,0,%d,%d", trials, intervalSec)

	self.lk.Lock()
	defer self.lk.Unlock()
	a, err := self.command(ctx, 1, cmd, []string{self.token}, joinAckTimeout)
	if err != nil {
		// some firmware skips OK and reports join result directly
		self.Log.Debugf("modem join ack err=%v", err)
	}
	if _, err = self.waitFor(ctx, &a, self.clock.Now(), joinTokens, timeout); err != nil {
		return errors.Annotatef(err, "modem join")
	}
	return nil
}

// Setup runs configured join sequence. Errors are folded, none is fatal,
// uplinks may still work with keys stored in module.
func (self *Modem) Setup(ctx context.Context) error {
	errs := []error{}
	if err := self.Init(ctx); err != nil {
		errs = append(errs, err)
	}
	j := self.join
	if !j.Enable {
		return helpers.FoldErrors(errs)
	}
	if j.Region != "" {
		if err := self.SetRegion(ctx, j.Region); err != nil {
			errs = append(errs, err)
		}
	}
	if j.DevEUI != "" || j.AppEUI != "" || j.AppKey != "" {
		if err := self.SetKeys(ctx, j.DevEUI, j.AppEUI, j.AppKey); err != nil {
			errs = append(errs, err)
		}
	}
	err := self.Join(ctx,
		helpers.IntDefault(j.Trials, DefaultJoinTrials),
		helpers.IntDefault(j.IntervalSec, DefaultJoinInterval),
		helpers.IntMillisDefault(j.TimeoutMs, DefaultJoinTimeout))
	if err != nil {
		errs = append(errs, err)
	}
	return helpers.FoldErrors(errs)
}

type Downlink struct {
	Port    uint8
	Payload []byte
}

// ReadDownlink collects whatever module printed after last uplink
// and scrapes port number and hex payload from it.
func (self *Modem) ReadDownlink(ctx context.Context) (Downlink, bool) {
	self.lk.Lock()
	defer self.lk.Unlock()
	if err := self.clock.Sleep(ctx, downlinkSettle); err != nil {
		return Downlink{}, false
	}
	var sb strings.Builder
	for {
		n, err := self.port.ReadAvailable(self.readBuf)
		sb.Write(self.readBuf[:n])
		if err != nil || n < len(self.readBuf) {
			break
		}
	}
	raw := sb.String()
	if raw == "" {
		return Downlink{}, false
	}
	self.Log.Debugf("modem downlink raw=%q", raw)
	return ParseDownlink(raw)
}

// ParseDownlink understands common firmware variants:
// "RX: PORT:1; RX: 01 02 0A" and "PORT: 1, DATA: 01 02".
// Text without PORT or DATA field is not a downlink.
// Port is 0 when absent. Payload is all even length hex words after
// port field joined together, odd length words are skipped.
func ParseDownlink(s string) (Downlink, bool) {
	d := Downlink{}
	rest := s
	marker := false
	if p := strings.Index(s, "PORT"); p >= 0 {
		marker = true
		rest = s[p+len("PORT"):]
		if c := strings.IndexByte(rest, ':'); c >= 0 {
			rest = strings.TrimLeft(rest[c+1:], " ")
			end := 0
			for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
				end++
			}
			if port, err := strconv.ParseUint(rest[:end], 10, 8); err == nil {
				d.Port = uint8(port)
			}
			rest = rest[end:]
		}
	}
	if p := strings.Index(rest, "DATA"); p >= 0 {
		marker = true
		rest = rest[p+len("DATA"):]
	}
	if !marker {
		return Downlink{}, false
	}
	digits := make([]byte, 0, len(rest))
	for _, word := range strings.FieldsFunc(rest, isDownlinkSep) {
		if len(word)%2 == 0 && isHexWord(word) {
			digits = append(digits, word...)
		}
	}
	if len(digits) == 0 {
		return d, false
	}
	d.Payload = helpers.MustHex(string(digits))
	return d, true
}

func isDownlinkSep(r rune) bool {
	switch r {
	case ' ', '\t', '\r', '\n', ',', ';', ':':
		return true
	}
	return false
}

func isHexWord(w string) bool {
	for i := 0; i < len(w); i++ {
		c := w[i]
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return w != ""
}
