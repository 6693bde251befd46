package state

import (
	"context"
	"os"
	"testing"

	"github.com/cargowatch/telenode/hardware/serial"
	"github.com/cargowatch/telenode/internal/mirror"
	"github.com/cargowatch/telenode/log2"
)

// NewTestContext returns initialized Global with modem replying OK to everything
// and mirror publishing into mock.
func NewTestContext(t testing.TB, confString string) (context.Context, *Global, *serial.MockPort) {
	fs := NewMockFullReader(map[string]string{
		"test-inline": confString,
	})

	var log *log2.Log
	if os.Getenv("telenode_test_log_stderr") == "1" {
		log = log2.NewStderr(log2.LDebug) // useful with panics
	} else {
		log = log2.NewTest(t, log2.LDebug)
	}
	log.SetFlags(log2.LTestFlags)
	ctx, g := NewContext(log)
	port := serial.NewMockPort(serial.ScriptResponder(serial.Reply{Data: "OK\r\n"}), nil)
	g.Hardware.Modem.Port = port
	g.MirrorPublisher = mirror.NewMockPublisher(0)
	g.MustInit(ctx, MustReadConfig(log, fs, "test-inline"))
	return ctx, g, port
}
