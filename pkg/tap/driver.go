package tap

// PageDriver controls the single browser page a Session tests against.
//
// Methods are only called from the session's scheduler goroutine. The
// handlers registered with OnLoadFinished and OnConsoleMessage may be invoked
// from any goroutine.
type PageDriver interface {
	// SetViewport resizes the page.
	SetViewport(width, height int) error
	// Open starts navigating to url and returns without waiting for the load.
	// Completion (or failure) is reported to the OnLoadFinished handler.
	Open(url string) error
	// OnLoadFinished replaces the handler called whenever a page load
	// finishes. err is non-nil if the navigation failed.
	OnLoadFinished(handler func(err error))
	// OnConsoleMessage replaces the handler for page console output.
	OnConsoleMessage(handler func(message string))
	// Evaluate runs a function expression in the page with args and returns
	// its JSON-compatible result.
	Evaluate(js string, args ...any) (any, error)
	// Render writes a screenshot to path; the format follows its extension.
	Render(path string) error
	// Release frees the page.
	Release() error
}

// ElementOp is the closed set of element operations the Bridge supports.
type ElementOp int

const (
	// OpText reads the combined text content of the matched elements.
	OpText ElementOp = iota
	// OpValue reads the value of the first matched element, or sets the value
	// of every matched element when an argument is given.
	OpValue
	// OpClick clicks the first matched element.
	OpClick
)

// String returns a string representation of the ElementOp.
func (op ElementOp) String() string {
	switch op {
	case OpText:
		return "text"
	case OpValue:
		return "val"
	case OpClick:
		return "click"
	default:
		return "unknown"
	}
}

// ElementQuery is one request to the Bridge.
type ElementQuery struct {
	Op       ElementOp
	Selector string
	Args     []any
}

// QueryResult is the Bridge's answer. QuerySet is set when the operation
// produced the matched element set rather than a value (setters, clicks); the
// session treats that as an empty (nil) result.
type QueryResult struct {
	Value    any
	QuerySet bool
}

// Bridge turns element queries into DOM operations in the current page.
type Bridge interface {
	Query(q ElementQuery) (QueryResult, error)
}

// Exiter receives the final status of a session.
type Exiter interface {
	Exit(code int)
}

// ExitFunc adapts a function to Exiter.
type ExitFunc func(code int)

// Exit calls f(code).
func (f ExitFunc) Exit(code int) {
	f(code)
}

// ExitInternalError is the status used when a session aborts.
const ExitInternalError = 127
