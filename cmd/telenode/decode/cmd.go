// Package decode prints uplink packets given as hex, for network server debugging.
package decode

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/cargowatch/telenode/cmd/telenode/subcmd"
	"github.com/cargowatch/telenode/helpers/cli"
	"github.com/cargowatch/telenode/internal/packet"
	"github.com/cargowatch/telenode/internal/state"
	"github.com/juju/errors"
)

var Mod = subcmd.Mod{Name: "decode", Usage: "decode HEX... (or stdin lines)", Main: Main, NoConfig: true}

func Main(ctx context.Context, config *state.Config, args []string) error {
	if len(args) == 0 {
		errs := 0
		cli.ReadLines(os.Stdin, func(line string) {
			if err := Print(os.Stdout, line); err != nil {
				errs++
			}
		})
		if errs != 0 {
			return errors.Errorf("decode failed lines=%d", errs)
		}
		return nil
	}
	for _, arg := range args {
		if err := Print(os.Stdout, arg); err != nil {
			return err
		}
	}
	return nil
}

func Print(w io.Writer, s string) error {
	p, err := packet.DecodeHex(s)
	if err != nil {
		fmt.Fprintf(w, "%s error: %v\n", s, err)
		return errors.Annotatef(err, "decode %s", s)
	}
	fmt.Fprintf(w, "%s %s\n", p.Hex(), p.String())
	return nil
}
