package tap

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
)

// Script is the source of a page-side function, such as
// `() => document.title`. Passed to Is or Like it is evaluated in the page
// when the assertion runs.
type Script string

// formatValue renders a value the way it reads in a page script: nil is
// empty, lists are comma-joined and regexps are slash-delimited.
func formatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case *regexp.Regexp:
		if v == nil {
			return ""
		}
		return "/" + v.String() + "/"
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case []any:
		parts := make([]string, len(v))
		for i, e := range v {
			parts[i] = formatValue(e)
		}
		return strings.Join(parts, ",")
	case []string:
		return strings.Join(v, ",")
	case fmt.Stringer:
		return v.String()
	}
	return fmt.Sprint(v)
}

// looseEqual reports whether got and expected are the same value, or render
// the same (so "5" equals 5).
func looseEqual(got, expected any) bool {
	if reflect.DeepEqual(got, expected) {
		return true
	}
	if got == nil || expected == nil {
		return false
	}
	return formatValue(got) == formatValue(expected)
}
