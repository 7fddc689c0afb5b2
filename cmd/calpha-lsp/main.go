// Command calpha-lsp serves the Language Server Protocol for calpha over
// stdio.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/calpha-lang/calpha/internal/abi"
	"github.com/calpha-lang/calpha/internal/cli"
	"github.com/calpha-lang/calpha/internal/compiler"
	"github.com/calpha-lang/calpha/internal/lsp"
)

const tool = "calpha-lsp"

func main() {
	var (
		configPath  = flag.String("config", "", "configuration file")
		verbose     = flag.Bool("verbose", false, "log requests to stderr")
		debug       = flag.Bool("debug", false, "log protocol traffic to stderr")
		showVersion = flag.Bool("version", false, "show version information")
		jsonOutput  = flag.Bool("json", false, "print version information as JSON")
	)
	flag.Parse()

	if *showVersion {
		if err := cli.PrintVersion(os.Stdout, tool, *jsonOutput); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", tool, err)
			os.Exit(1)
		}
		return
	}

	cfg, err := cli.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", tool, err)
		os.Exit(2)
	}
	log := cli.NewLogger(os.Stderr, cfg.Verbose || *verbose, cfg.Debug || *debug)

	table := abi.Default()
	if cfg.ABIFile != "" {
		if table, err = abi.LoadFile(cfg.ABIFile); err != nil {
			log.Error("load ABI: %v", err)
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err = lsp.RunStdio(ctx, &lsp.ServerOptions{
		Compiler: compiler.Options{ABI: table, Registers: cfg.Registers, Jobs: cfg.Jobs},
		Logger:   log,
	})
	if err != nil {
		log.Error("%v", err)
		stop()
		os.Exit(1)
	}
}
