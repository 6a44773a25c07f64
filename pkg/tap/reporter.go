package tap

import (
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"
)

var lineSplit = regexp.MustCompile(`\r?\n`)

// Counters holds the running assertion totals. Passed and Failed always add up
// to Total.
type Counters struct {
	Total  int
	Passed int
	Failed int
}

// Reporter writes TAP-compatible results:
//
//	ok 1 Homepage loaded
//	not ok 2 Exactly one match in search results
//	# 	Got: Repositories (2)
//	# 	Expected: Repositories (1)
//	1..2
//	# Looks like you failed 1 test(s) of 2.
//
// Lines are written immediately, in call order.
type Reporter struct {
	mu     sync.Mutex
	out    io.Writer
	counts Counters
}

// NewReporter creates a Reporter writing to out.
func NewReporter(out io.Writer) *Reporter {
	return &Reporter{out: out}
}

// Record counts one assertion and writes its result line.
func (r *Reporter) Record(ok bool, description string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record(ok, description)
}

// RecordComparison is like Record, but a failure is followed by a diagnostic
// showing both values.
func (r *Reporter) RecordComparison(ok bool, description string, got, expected any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record(ok, description)
	if !ok {
		r.diag("Got: "+formatValue(got)+"\nExpected: "+formatValue(expected), 1)
	}
}

func (r *Reporter) record(ok bool, description string) {
	r.counts.Total++
	n := r.counts.Total
	if ok {
		r.counts.Passed++
		r.println(fmt.Sprintf("ok %d %s", n, description))
		return
	}
	r.counts.Failed++
	r.println(fmt.Sprintf("not ok %d %s", n, description))
}

// Diag writes message as comment lines, one per line of message.
func (r *Reporter) Diag(message string) {
	r.DiagIndent(message, 0)
}

// DiagIndent is like Diag, with indent tabs after each "# ".
func (r *Reporter) DiagIndent(message string, indent int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.diag(message, indent)
}

func (r *Reporter) diag(message string, indent int) {
	if indent < 0 {
		indent = 0
	}
	prefix := "# " + strings.Repeat("\t", indent)
	for _, line := range lineSplit.Split(message, -1) {
		r.println(prefix + line)
	}
}

// Finish writes the plan line (and a failure summary) and returns the exit
// status: 0 when nothing failed, 1 otherwise.
//
// Finish is not idempotent; a second call writes a second plan, which breaks
// the report. Callers must call it once.
func (r *Reporter) Finish() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.counts.Total == 0 {
		r.println("1..0")
		r.diag("No tests run!", 0)
		return 0
	}
	r.println(fmt.Sprintf("1..%d", r.counts.Total))
	if r.counts.Failed > 0 {
		r.diag(fmt.Sprintf("Looks like you failed %d test(s) of %d.", r.counts.Failed, r.counts.Total), 0)
		return 1
	}
	return 0
}

// Counts returns a snapshot of the counters.
func (r *Reporter) Counts() Counters {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts
}

func (r *Reporter) println(line string) {
	// a report that cannot be written has nowhere to report to
	_, _ = io.WriteString(r.out, line+"\n")
}
