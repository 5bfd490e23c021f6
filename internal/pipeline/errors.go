package pipeline

import (
	"fmt"

	"flipbook-app/internal/leaf"
	"flipbook-app/internal/pdf"
)

// OpenError is fatal for a run: nothing is produced.
type OpenError = pdf.OpenError

// RenderError skips one page; the run continues.
type RenderError = pdf.RenderError

// EncodingError skips one leaf; its sibling is still emitted.
type EncodingError struct {
	Page int
	Side leaf.Side
	Err  error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("pipeline: encoding %s leaf of page %d: %v", e.Side, e.Page, e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }

// Warning is a recoverable failure recorded in the run report.
type Warning struct {
	Page    int    `json:"page"`
	Side    string `json:"side,omitempty"`
	Message string `json:"message"`
}

func warningFor(err error) Warning {
	switch e := err.(type) {
	case *EncodingError:
		return Warning{Page: e.Page, Side: e.Side.String(), Message: e.Err.Error()}
	case *RenderError:
		return Warning{Page: e.Page, Message: e.Err.Error()}
	default:
		return Warning{Message: err.Error()}
	}
}
