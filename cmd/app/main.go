package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"futures_trader/internal/app"
	"futures_trader/internal/infra"
)

func main() {
	var opts app.Options
	flag.StringVar(&opts.Symbol, "symbol", "", "instrument to trade, e.g. BTCUSDT (may also be given as the first argument)")
	flag.StringVar(&opts.ConfigPath, "config", infra.DefaultConfigPath, "settings file (.yaml or .toml)")
	flag.StringVar(&opts.LogLevel, "log-level", "", "debug, info, warn or error; overrides logging.level")
	flag.BoolVar(&opts.Once, "once", false, "exit after the first decision cycle")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] [SYMBOL]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if opts.Symbol == "" && flag.NArg() > 0 {
		opts.Symbol = flag.Arg(0)
	}

	if err := run(opts); err != nil {
		slog.Error("Trader exited with error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(opts app.Options) error {
	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(opts); err != nil {
		return err
	}
	defer bootstrap.Close()

	// Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := bootstrap.Run(ctx, opts.Once); err != nil {
		return err
	}
	slog.Info("Shut down gracefully")
	return nil
}
