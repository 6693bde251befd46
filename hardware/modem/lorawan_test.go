package modem

import (
	"context"
	"strings"
	"testing"
	"time"

	modem_config "github.com/cargowatch/telenode/hardware/modem/config"
	"github.com/cargowatch/telenode/hardware/serial"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func joinResponder(joinReply string) serial.Responder {
	return func(line string) []serial.Reply {
		if strings.HasPrefix(line, "AT+CJOIN=") {
			return serial.ParseReplies(joinReply)
		}
		return serial.ParseReplies(`sOK\r\n`)
	}
}

func TestSetup(t *testing.T) {
	t.Parallel()

	m, port, _ := NewTestModem(t, joinResponder(`sOK\r\n d6s,s+CJOIN:JOINED\r\n`), &modem_config.Config{
		Join: modem_config.Join{
			Enable: true,
			Region: "AS923",
			DevEUI: "0011223344556677",
			AppEUI: "70B3D57ED0000000",
			AppKey: "00112233445566778899AABBCCDDEEFF",
		},
	})
	require.NoError(t, m.Setup(context.Background()))
	assert.Equal(t, []string{
		"AT",
		"AT+CREGION=AS923",
		"AT+CDEVEUI=0011223344556677",
		"AT+CAPPEUI=70B3D57ED0000000",
		"AT+CAPPKEY=00112233445566778899AABBCCDDEEFF",
		"AT+CCLASS=0",
		"AT+CJOIN=1,0,8,8",
	}, port.Lines())
}

func TestSetupJoinDisabled(t *testing.T) {
	t.Parallel()

	m, port, _ := NewTestModem(t, joinResponder(""), nil)
	require.NoError(t, m.Setup(context.Background()))
	assert.Equal(t, []string{"AT"}, port.Lines())
}

func TestJoin(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		reply  string
		expect bool
	}{
		{"joined", `sOK\r\n d6s,s+CJOIN:JOINED`, true},
		{"accepted-without-ok", `d2s,sJoin:ACCEPTED`, true},
		{"same-chunk", `sOK+EVT:JOINED`, true},
		{"never", `sOK\r\n d2s,s+CJOIN:FAIL`, false},
		{"too-late", `sOK d21s,sJOINED`, false},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			m, _, _ := NewTestModem(t, joinResponder(c.reply), nil)
			err := m.Join(context.Background(), 8, 8, DefaultJoinTimeout)
			if c.expect {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.True(t, errors.IsTimeout(errors.Cause(err)), "err=%v", err)
			}
		})
	}
}

func TestSetKeysPartialFailure(t *testing.T) {
	t.Parallel()

	m, port, _ := NewTestModem(t, func(line string) []serial.Reply {
		if strings.HasPrefix(line, "AT+CAPPEUI=") {
			return serial.ParseReplies(`sERROR`)
		}
		return serial.ParseReplies(`sOK`)
	}, &modem_config.Config{AttemptTimeoutMs: 50})
	err := m.SetKeys(context.Background(), "01", "02", "03")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AT+CAPPEUI=02")
	assert.Len(t, port.Lines(), 4)
}

func TestReadDownlink(t *testing.T) {
	t.Parallel()

	m, port, clock := NewTestModem(t, nil, nil)
	_, ok := m.ReadDownlink(context.Background())
	assert.False(t, ok)
	assert.Equal(t, 50*time.Millisecond, clock.Slept())

	port.Push("+EVT:RX_1, PORT: 2, DATA: 0a 0B\r\n")
	d, ok := m.ReadDownlink(context.Background())
	require.True(t, ok)
	assert.Equal(t, Downlink{Port: 2, Payload: []byte{0x0a, 0x0b}}, d)
}

func TestParseDownlink(t *testing.T) {
	t.Parallel()

	cases := []struct {
		input  string
		ok     bool
		expect Downlink
	}{
		{"RX: PORT:1; RX: 01 02 0A", true, Downlink{Port: 1, Payload: []byte{1, 2, 0x0a}}},
		{"PORT: 12, DATA: ff", true, Downlink{Port: 12, Payload: []byte{0xff}}},
		{"DATA: 123", false, Downlink{}},
		{"PORT: 2, DATA: 1 02", true, Downlink{Port: 2, Payload: []byte{0x02}}},
		{"+CLINKCHECK: 0,0,1,21,-88", false, Downlink{}},
		{"+EVT:TX_DONE 00 12", false, Downlink{}},
		{"PORT: 3, DATA:", false, Downlink{Port: 3}},
		{"+EVT:TX_DONE", false, Downlink{}},
		{"PORT:4 RX_1 BEEF", true, Downlink{Port: 4, Payload: []byte{0xbe, 0xef}}},
		{"", false, Downlink{}},
	}
	for _, c := range cases {
		c := c
		t.Run(c.input, func(t *testing.T) {
			d, ok := ParseDownlink(c.input)
			assert.Equal(t, c.ok, ok)
			assert.Equal(t, c.expect, d)
		})
	}
}
