package tabular

import "fmt"

// MalformedRowError reports a row (or header, Line 1) that does not fit the column schema.
type MalformedRowError struct {
	Line   int
	Column string
	Reason string
	Err    error
}

func (e *MalformedRowError) Error() string {
	msg := fmt.Sprintf("line %d", e.Line)
	if e.Column != "" {
		msg += fmt.Sprintf(": column %q", e.Column)
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedRowError) Unwrap() error {
	return e.Err
}

// UnknownFacetError is raised when a categorical facet value is not in the vocabulary.
type UnknownFacetError struct {
	Line  int
	Facet string
	Value string
}

func (e *UnknownFacetError) Error() string {
	return fmt.Sprintf("line %d: unknown facet value %q=%q", e.Line, e.Facet, e.Value)
}

func malformed(line int, column, reason string, err error) *MalformedRowError {
	return &MalformedRowError{Line: line, Column: column, Reason: reason, Err: err}
}
