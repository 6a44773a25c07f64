// browsertap runs a JavaScript acceptance-test script against a headless
// Chrome page and prints the results as TAP.
//
// Usage:
//
//	browsertap [flags] script.js
//	browsertap -fixtures :0 examples/search.js   # against the bundled fixture site
//	browsertap -watch -headless=false script.js  # re-run on every save
//
// The exit status is 0 when every test passed, 1 when any failed and 127 when
// the run aborted.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joeycumines/stumpy"

	"github.com/thesyncim/browsertap/pkg/tap"
)

func main() {
	os.Exit(realMain(os.Args[1:]))
}

func realMain(args []string) int {
	fs := flag.NewFlagSet("browsertap", flag.ContinueOnError)
	configPath := fs.String("config", "", "YAML config file")
	baseURL := fs.String("base-url", "", "Base URL for every session, overriding the script's")
	timeout := fs.Duration("timeout", tap.DefaultTimeout, "Limit for each waiting step (e.g., 10s)")
	width := fs.Int("width", tap.DefaultWidth, "Viewport width")
	height := fs.Int("height", tap.DefaultHeight, "Viewport height")
	headless := fs.Bool("headless", true, "Run Chrome headless")
	watch := fs.Bool("watch", false, "Re-run the script whenever it changes")
	fixtures := fs.String("fixtures", "", "Serve the fixture site on this address (e.g., :0)")
	logLevel := fs.String("log-level", "warning", "Operational log level (debug, info, warning, err)")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: browsertap [flags] script.js\n\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return 2
	}

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "browsertap: %v\n", err)
		return 2
	}
	// flags given explicitly win over the file
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "base-url":
			cfg.BaseURL = *baseURL
		case "timeout":
			cfg.Timeout = int(*timeout / time.Millisecond)
		case "width":
			cfg.Width = *width
		case "height":
			cfg.Height = *height
		case "headless":
			cfg.Browser.Headless = *headless
		case "watch":
			cfg.Watch = *watch
		case "fixtures":
			cfg.Fixtures = *fixtures
		case "log-level":
			cfg.LogLevel = *logLevel
		}
	})
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "browsertap: %v\n", err)
		return 2
	}

	level, _ := parseLevel(cfg.LogLevel)
	logger := stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(os.Stderr)),
		stumpy.L.WithLevel(level),
	).Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := &app{cfg: cfg, log: logger, out: os.Stdout}
	status, err := a.run(ctx, fs.Arg(0))
	if err != nil {
		logger.Err().Err(err).Int("status", status).Log("run failed")
	}
	return status
}
