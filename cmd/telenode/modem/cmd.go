// Package modem is interactive AT console for field diagnostics.
// Node must not be running, console owns serial port exclusively.
package modem

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/c-bata/go-prompt"
	"github.com/cargowatch/telenode/cmd/telenode/subcmd"
	"github.com/cargowatch/telenode/hardware/modem"
	"github.com/cargowatch/telenode/helpers/cli"
	"github.com/cargowatch/telenode/internal/state"
	"github.com/cargowatch/telenode/log2"
	"github.com/juju/errors"
)

const usage = `syntax: one command per line
- AT...       send raw command, show response
- send HEX    uplink payload with retry, show outcome
- setup       AT wake, region, keys and join per config
- join        OTAA join with configured parameters
- downlink    show pending downlink
- log=yes     enable exchange debug logging
- log=no      disable exchange debug logging
`

const queryTimeout = 2 * time.Second

var Mod = subcmd.Mod{Name: "modem", Usage: "interactive AT console", Main: Main}

func Main(ctx context.Context, config *state.Config, args []string) error {
	g := state.GetGlobal(ctx)
	g.Config = config
	port, err := g.ModemPort()
	if err != nil {
		return errors.Annotate(err, "modem console")
	}
	m := modem.New(port, &config.Modem, g.Log.Clone(log2.LDebug))
	defer m.Close()

	if len(args) != 0 {
		return Exec(ctx, m, strings.Join(args, " "), os.Stdout)
	}
	exec := func(line string) {
		if err := Exec(ctx, m, line, os.Stdout); err != nil {
			g.Log.Error(err)
		}
	}
	cli.MainLoop("telenode-modem", exec, cli.PrefixSuggest(suggests), nil)
	return nil
}

var suggests = []prompt.Suggest{
	{Text: "AT", Description: "raw command"},
	{Text: "send", Description: "uplink payload HEX"},
	{Text: "setup", Description: "wake, keys, join"},
	{Text: "join", Description: "OTAA join"},
	{Text: "downlink", Description: "show pending downlink"},
	{Text: "log=yes", Description: "debug logging"},
	{Text: "log=no", Description: "quiet logging"},
	{Text: "help", Description: "show syntax"},
}

func Exec(ctx context.Context, m *modem.Modem, line string, w io.Writer) error {
	line = strings.TrimSpace(line)
	word := strings.ToLower(strings.SplitN(line, " ", 2)[0])
	switch {
	case word == "help":
		fmt.Fprint(w, usage)

	case word == "log=yes":
		m.Log.SetLevel(log2.LDebug)
	case word == "log=no":
		m.Log.SetLevel(log2.LError)

	case word == "setup":
		return m.Setup(ctx)

	case word == "join":
		return m.Join(ctx, modem.DefaultJoinTrials, modem.DefaultJoinInterval, modem.DefaultJoinTimeout)

	case word == "downlink":
		d, ok := m.ReadDownlink(ctx)
		if !ok {
			fmt.Fprintln(w, "no downlink")
			return nil
		}
		fmt.Fprintf(w, "port=%d payload=%X\n", d.Port, d.Payload)

	case word == "send":
		arg := strings.TrimSpace(strings.TrimPrefix(line, line[:len(word)]))
		payload, err := hex.DecodeString(arg)
		if err != nil || len(payload) == 0 {
			return errors.NotValidf("send payload=%q", arg)
		}
		o := m.SendPacket(ctx, payload)
		fmt.Fprintln(w, o.String())

	case strings.HasPrefix(word, "at"):
		resp, err := m.Query(ctx, line, queryTimeout)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%q\n", resp)

	default:
		return errors.NotValidf("command=%q (try help)", line)
	}
	return nil
}
