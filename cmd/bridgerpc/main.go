// Package main is the bridgerpc command-line client: a thin, untyped
// front end over the rpc package for poking at a host process without
// writing a contract. It covers unary calls, batches, subscription
// tailing, and host introspection.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nugget/bridgerpc/internal/buildinfo"
	"github.com/nugget/bridgerpc/internal/config"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	if flag.NArg() == 0 {
		usage()
		return
	}

	switch flag.Arg(0) {
	case "call":
		if flag.NArg() < 2 {
			fmt.Fprintln(os.Stderr, "usage: bridgerpc call <path> [json-input]")
			os.Exit(1)
		}
		run(*configPath, func(ctx context.Context, app *app) error {
			return app.runCall(ctx, flag.Arg(1), flag.Args()[2:])
		})
	case "subscribe":
		if flag.NArg() < 2 {
			fmt.Fprintln(os.Stderr, "usage: bridgerpc subscribe <path> [json-input]")
			os.Exit(1)
		}
		run(*configPath, func(ctx context.Context, app *app) error {
			return app.runSubscribe(ctx, flag.Arg(1), flag.Args()[2:])
		})
	case "batch":
		run(*configPath, func(ctx context.Context, app *app) error {
			return app.runBatch(ctx, os.Stdin)
		})
	case "procedures":
		run(*configPath, func(ctx context.Context, app *app) error {
			return app.runProcedures(ctx)
		})
	case "count":
		run(*configPath, func(ctx context.Context, app *app) error {
			return app.runSubscriptionCount(ctx)
		})
	case "version":
		fmt.Println(buildinfo.String())
		for k, v := range buildinfo.BuildInfo() {
			fmt.Printf("  %-12s %s\n", k+":", v)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", flag.Arg(0))
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("bridgerpc - command-line RPC client")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  call <path> [json]       Invoke a unary procedure")
	fmt.Println("  subscribe <path> [json]  Tail a subscription until completed or interrupted")
	fmt.Println("  batch                    Send a batch read as JSON from stdin")
	fmt.Println("  procedures               List the host's registered procedure paths")
	fmt.Println("  count                    Show the host's live subscription count")
	fmt.Println("  version                  Show version")
	fmt.Println()
	fmt.Println("Flags:")
	flag.PrintDefaults()
}

// run loads configuration, builds the app, and executes fn under a
// signal-cancelled context so Ctrl-C tears subscriptions down through
// the normal shutdown path.
func run(configPath string, fn func(ctx context.Context, app *app) error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfgPath, err := config.FindConfig(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config %s: %v\n", cfgPath, err)
		os.Exit(1)
	}

	app, err := newApp(ctx, cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer app.Close()

	if err := fn(ctx, app); err != nil {
		app.logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}
