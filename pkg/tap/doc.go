// Package tap runs scripted acceptance tests against a headless browser page
// and reports the results in TAP format.
//
// A test script is plain procedural code: each Session method queues one step
// and returns at once, and the steps then run strictly in order, one at a
// time, whether they finish immediately (assertions, configuration) or wait
// for the browser (page loads, pauses).
//
// # Quick Start
//
//	browser, err := rodpage.Launch(rodpage.DefaultBrowserConfig())
//	if err != nil {
//	    return err
//	}
//	defer browser.Close()
//
//	page, err := browser.NewPage()
//	if err != nil {
//	    return err
//	}
//
//	s, err := tap.NewSession(tap.DefaultConfig("https://example.com"), page, nil)
//	if err != nil {
//	    return err
//	}
//	defer s.Close(context.Background())
//
//	s.Open("/")
//	s.Is(s.Text("title"), "Example Domain", "Homepage loaded")
//	s.Done()
//
//	status, err := s.Wait(ctx)
//
// Output:
//
//	# loaded: https://example.com/
//	ok 1 Homepage loaded
//	1..1
//
// # Deferred values
//
// Methods that read the page (Text, Val, Eval) return a *Deferred. It is
// resolved by its own step and read by a later one, which is safe because a
// step never starts before every earlier step has finished. Reading a
// Deferred that is still pending is a programming error and aborts the run.
//
// # Timeouts and failures
//
// Steps that wait for an event are bounded by the "timeout" setting (10s by
// default). An overrunning step is reported as a failed test named after the
// step ("open timed out") and the run carries on. Failed assertions only
// affect the exit status. Anything unexpected inside a step, such as a
// browser error, aborts the run with an "Internal error" diagnostic and
// status 127.
//
// # Scheduling
//
// All steps, timers and browser callbacks run on a single goroutine provided
// by a Scheduler. By default each Session runs its own go-eventloop loop
// (LoopScheduler).
package tap
