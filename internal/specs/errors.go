package specs

import "fmt"

// Error is a single structural or semantic Spec validation failure.
type Error struct {
	Path    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Errors is a non-empty collection of validation failures returned by
// Validate. It implements error so callers that only want a single error
// value can still treat it as one, while callers that want the full list
// can type-assert back to *Errors.
type Errors struct {
	Items []*Error
}

func (e *Errors) Error() string {
	if len(e.Items) == 1 {
		return e.Items[0].Error()
	}
	return fmt.Sprintf("%d spec validation errors, first: %s", len(e.Items), e.Items[0].Error())
}

func newErrors() *Errors {
	return &Errors{}
}

func (e *Errors) add(path, format string, args ...interface{}) {
	e.Items = append(e.Items, &Error{Path: path, Message: fmt.Sprintf(format, args...)})
}

func (e *Errors) any() bool {
	return len(e.Items) > 0
}
