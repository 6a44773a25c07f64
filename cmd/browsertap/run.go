package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joeycumines/logiface"
	"golang.org/x/sync/errgroup"

	"github.com/thesyncim/browsertap/cmd/fixture-site/server"
	"github.com/thesyncim/browsertap/pkg/tap"
	"github.com/thesyncim/browsertap/pkg/tap/rodpage"
	"github.com/thesyncim/browsertap/pkg/tap/script"
)

// watchDebounce groups the burst of events an editor produces on save.
const watchDebounce = 200 * time.Millisecond

// pageFunc opens a fresh browser page for a session.
type pageFunc func() (tap.PageDriver, error)

// app runs scripts with one configuration.
type app struct {
	cfg Config
	log *logiface.Logger[logiface.Event]
	out io.Writer
}

// run starts the optional fixture site and the browser, then runs path once,
// or on every change in watch mode. The status is that of the last run.
func (a *app) run(ctx context.Context, path string) (int, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	if a.cfg.Fixtures != "" {
		srvCfg := server.DefaultConfig()
		srvCfg.Addr = a.cfg.Fixtures
		srvCfg.Logger = a.log
		srv, err := server.NewServer(srvCfg)
		if err != nil {
			return tap.ExitInternalError, err
		}
		if _, err := srv.Start(); err != nil {
			return tap.ExitInternalError, err
		}
		if a.cfg.BaseURL == "" {
			a.cfg.BaseURL = srv.URL()
		}
		a.log.Info().Str("url", srv.URL()).Log("fixture site started")
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	browser, err := rodpage.Launch(a.cfg.BrowserOptions())
	if err != nil {
		cancel()
		_ = g.Wait()
		return tap.ExitInternalError, err
	}
	defer func() {
		if err := browser.Close(); err != nil {
			a.log.Warning().Err(err).Log("failed to close browser")
		}
	}()
	newPage := func() (tap.PageDriver, error) {
		p, err := browser.NewPage()
		if err != nil {
			return nil, err
		}
		return p, nil
	}

	var status int
	g.Go(func() error {
		defer cancel()
		var err error
		if a.cfg.Watch {
			status, err = a.watch(gctx, path, func(ctx context.Context) (int, error) {
				return a.runScript(ctx, path, newPage)
			})
		} else {
			status, err = a.runScript(gctx, path, newPage)
		}
		return err
	})
	err = g.Wait()
	return status, err
}

// runScript runs the script at path once.
func (a *app) runScript(ctx context.Context, path string, newPage pageFunc) (int, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return tap.ExitInternalError, err
	}
	runner := script.NewRunner(func(base string) (*tap.Session, error) {
		page, err := newPage()
		if err != nil {
			return nil, err
		}
		return tap.NewSession(a.cfg.Session(base), page, nil,
			tap.WithOutput(a.out),
			tap.WithLogger(a.log),
		)
	}, script.WithLogger(a.log))

	a.log.Info().Str("script", path).Log("running script")
	return runner.Run(ctx, string(src), filepath.Base(path))
}

// watch calls once now and again after every change to path, until ctx is
// done. Errors from individual runs are logged, not returned.
func (a *app) watch(ctx context.Context, path string, once func(context.Context) (int, error)) (int, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return tap.ExitInternalError, err
	}
	defer watcher.Close()

	// editors often replace the file, so watch its directory
	target := filepath.Clean(path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return tap.ExitInternalError, fmt.Errorf("watching %s: %w", path, err)
	}

	runOnce := func() int {
		status, err := once(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			a.log.Err().Err(err).Str("script", path).Log("script run failed")
		}
		a.log.Info().Int("status", status).Str("script", path).Log("waiting for changes")
		return status
	}
	status := runOnce()

	debounce := time.NewTimer(watchDebounce)
	debounce.Stop()
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return status, nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return status, nil
			}
			if filepath.Clean(ev.Name) != target || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
				continue
			}
			debounce.Reset(watchDebounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return status, nil
			}
			a.log.Warning().Err(err).Log("watch error")
		case <-debounce.C:
			status = runOnce()
		}
	}
}
