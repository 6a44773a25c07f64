//go:build e2e

// Package e2e drives tap sessions and scripts through a real Chrome against
// the bundled fixture site.
//
// The package only builds with the e2e tag, so a plain `go test ./...` skips
// it. Run it with:
//
//	go test -tags=e2e -v ./e2e/
//
// Chrome is started through rodpage, which uses a local install when it finds
// one and otherwise lets Rod download a pinned Chromium on first use.
// Headless mode and --no-sandbox come from rodpage.DefaultBrowserConfig, so
// the suite also runs in CI containers.
//
// # Fixtures
//
// TestMain serves cmd/fixture-site/server on a port chosen by the kernel and
// exports its loopback URL as siteURL. The same site can be started by hand to
// debug a failing test:
//
//	go run ./cmd/fixture-site -addr 127.0.0.1:8080 -v
//	go run ./cmd/browsertap -base-url http://127.0.0.1:8080 -headless=false examples/search.js
//
// # Browser
//
// One browser is shared by the whole run. Every test opens its own page and
// releases it through Session.Done or Session.Close. Chrome processes left
// over by a crashed run are killed when TestMain returns.
package e2e
