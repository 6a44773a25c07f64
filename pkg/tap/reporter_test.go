package tap

import (
	"bytes"
	"regexp"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReporter_PassAndFailLines(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(&buf)

	r.Record(true, "first")
	r.Record(false, "second")
	r.Record(true, "third")

	assert.Equal(t, "ok 1 first\nnot ok 2 second\nok 3 third\n", buf.String())
	assert.Equal(t, Counters{Total: 3, Passed: 2, Failed: 1}, r.Counts())
}

func TestReporter_ComparisonDiagnostic(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(&buf)

	r.RecordComparison(false, "mismatch", "A", "B")
	r.RecordComparison(true, "match", "A", "A")

	assert.Equal(t, "not ok 1 mismatch\n# \tGot: A\n# \tExpected: B\nok 2 match\n", buf.String())
}

func TestReporter_ComparisonFormatsValues(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(&buf)

	r.RecordComparison(false, "pattern", nil, regexp.MustCompile(`^Repo`))

	assert.Equal(t, "not ok 1 pattern\n# \tGot: \n# \tExpected: /^Repo/\n", buf.String())
}

func TestReporter_MultiLineDiag(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(&buf)

	r.Diag("one\ntwo\r\nthree")
	r.DiagIndent("nested", 2)

	assert.Equal(t, "# one\n# two\n# three\n# \t\tnested\n", buf.String())
	assert.Equal(t, Counters{}, r.Counts(), "diagnostics are not tests")
}

func TestReporter_FinishNoTests(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(&buf)

	status := r.Finish()

	assert.Equal(t, 0, status)
	assert.Equal(t, "1..0\n# No tests run!\n", buf.String())
}

func TestReporter_FinishAllPassed(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(&buf)
	r.Record(true, "a")
	r.Record(true, "b")
	buf.Reset()

	assert.Equal(t, 0, r.Finish())
	assert.Equal(t, "1..2\n", buf.String())
}

func TestReporter_FinishWithFailures(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(&buf)
	r.Record(true, "a")
	r.Record(false, "b")
	r.Record(false, "c")
	buf.Reset()

	assert.NotEqual(t, 0, r.Finish())
	assert.Equal(t, "1..3\n# Looks like you failed 2 test(s) of 3.\n", buf.String())
}

func TestReporter_PlanMatchesRecordCount(t *testing.T) {
	for _, n := range []int{1, 2, 7, 20} {
		var buf bytes.Buffer
		r := NewReporter(&buf)
		for i := 0; i < n; i++ {
			r.Record(i%3 != 0, "t")
		}
		r.Finish()

		c := r.Counts()
		assert.Equal(t, n, c.Total)
		assert.Equal(t, c.Total, c.Passed+c.Failed)
		assert.Contains(t, buf.String(), "\n1.."+strconv.Itoa(n)+"\n")
	}
}
