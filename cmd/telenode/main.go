package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/cargowatch/telenode/cmd/telenode/decode"
	modem_cmd "github.com/cargowatch/telenode/cmd/telenode/modem"
	"github.com/cargowatch/telenode/cmd/telenode/run"
	"github.com/cargowatch/telenode/cmd/telenode/subcmd"
	"github.com/cargowatch/telenode/internal/state"
	"github.com/cargowatch/telenode/log2"
	"github.com/juju/errors"
)

var BuildVersion string = "unknown" // set by ldflags -X

var modules = []subcmd.Mod{
	run.Mod,
	modem_cmd.Mod,
	decode.Mod,
}

func main() {
	flagConfig := flag.String("config", "telenode.hcl", "")
	flagDebug := flag.Bool("debug", false, "debug logging, overrides config")
	flag.Usage = usage
	flag.Parse()

	log := log2.NewStderr(log2.LInfo)
	if *flagDebug {
		log.SetLevel(log2.LDebug)
	}
	if subcmd.SdNotify("start") {
		// we're under systemd, assume systemd journal logging, remove timestamp
		log.SetFlags(log2.LServiceFlags)
	} else {
		log.SetFlags(log2.LInteractiveFlags)
	}

	mod, err := subcmd.Parse(flag.Arg(0), modules)
	if err != nil {
		usage()
		log.Fatal(err)
	}

	ctx, g := state.NewContext(log)
	g.BuildVersion = BuildVersion
	var config *state.Config
	if !mod.NoConfig {
		config = state.MustReadConfig(log, state.NewOsFullReader(), *flagConfig)
		config.LogDebug = config.LogDebug || *flagDebug
	}
	if err := mod.Main(ctx, config, flag.Args()[1:]); err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s [flags] command [args]\n\ncommands:\n", os.Args[0])
	for _, m := range modules {
		fmt.Fprintf(os.Stderr, "  %-8s %s\n", m.Name, m.Usage)
	}
	fmt.Fprintf(os.Stderr, "\nflags:\n")
	flag.PrintDefaults()
}
