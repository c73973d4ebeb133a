package floorbot

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/skytemple/swablu/internal/gateway"
)

// Embed colours used for error replies.
const (
	colorUserError     = 0xE74C3C
	colorInternalError = 0x992D22
)

// maxTrace keeps an internal error embed below the description limit.
const maxTrace = 3800

// UserError is a problem with the request itself. Title and Message are
// shown to the requester verbatim.
type UserError struct {
	Title   string
	Message string
}

func (e *UserError) Error() string {
	return e.Title + ": " + e.Message
}

// InternalError wraps a failure the requester cannot fix. Err carries the
// stack of the point where it was captured.
type InternalError struct {
	Err error
}

func (e *InternalError) Error() string { return "internal error: " + e.Err.Error() }
func (e *InternalError) Unwrap() error { return e.Err }

// Trace returns the error with its stack trace.
func (e *InternalError) Trace() string {
	return fmt.Sprintf("%+v", e.Err)
}

func userErrorf(title, format string, args ...any) *UserError {
	return &UserError{Title: title, Message: fmt.Sprintf(format, args...)}
}

// internal captures the current stack around err.
func internal(err error) *InternalError {
	return &InternalError{Err: errors.WithStack(err)}
}

// errorEmbed turns a pipeline error into the reply shown in the channel.
// Anything that is not a UserError is reported as an internal error.
func errorEmbed(err error) gateway.Embed {
	var ue *UserError
	if errors.As(err, &ue) {
		return gateway.Embed{Title: ue.Title, Description: ue.Message, Color: colorUserError}
	}

	var ie *InternalError
	if !errors.As(err, &ie) {
		ie = internal(err)
	}
	trace := ie.Trace()
	if len(trace) > maxTrace {
		trace = trace[:maxTrace] + "\n..."
	}
	return gateway.Embed{
		Title:       "Internal Error",
		Description: fmt.Sprintf("Oh oh! There was an internal error while trying to process your message:\n\n```\n%s\n```", trace),
		Color:       colorInternalError,
	}
}
