// Fixture Site
//
// Serves a small static site (home, explore, search form, search results and
// repository pages) that browsertap scripts and the e2e suite run against.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"

	"github.com/thesyncim/browsertap/cmd/fixture-site/server"
)

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	verbose := flag.Bool("v", false, "log every request")
	flag.Parse()

	level := logiface.LevelInformational
	if *verbose {
		level = logiface.LevelDebug
	}
	logger := stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(os.Stderr)),
		stumpy.L.WithLevel(level),
	).Logger()

	cfg := server.DefaultConfig()
	cfg.Addr = *addr
	cfg.Logger = logger
	srv, err := server.NewServer(cfg)
	if err != nil {
		logger.Crit().Err(err).Log("failed to create server")
		os.Exit(1)
	}

	bound, err := srv.Start()
	if err != nil {
		logger.Crit().Err(err).Log("failed to start server")
		os.Exit(1)
	}

	fmt.Printf(`
Fixture Site
============
Try: browsertap -base-url %s examples/search.js

Server ready on %s
`, srv.URL(), bound)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Err().Err(err).Log("shutdown failed")
	}
}
