// Package notes holds the dual-note domain shared by the server and the
// terminal client: request and result types, the instruction composer, and
// the wire framing that carries two note channels over one byte stream.
package notes

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Channel identifies one of the two logical note streams.
type Channel string

const (
	ChannelTechnical Channel = "technical"
	ChannelUser      Channel = "user"
)

// Header returns the heading the model is asked to open each channel with.
func (c Channel) Header() string {
	switch c {
	case ChannelTechnical:
		return "DEVELOPER NOTES"
	case ChannelUser:
		return "MARKETING NOTES"
	default:
		return ""
	}
}

// ValidationMessage is the error text clients see for an incomplete request.
const ValidationMessage = "Missing required fields: prId and diff"

// ErrValidation is returned for requests missing a subject or a diff body.
var ErrValidation = errors.New("missing required fields: prId and diff")

// Request asks for notes on one pull request diff.
type Request struct {
	SubjectID string
	Body      string
}

// Validate rejects a request whose subject or body is empty or only
// whitespace.
func (r Request) Validate() error {
	if blank(r.SubjectID) || blank(r.Body) {
		return ErrValidation
	}
	return nil
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// Result is a (possibly partial) pair of notes. CompletedAt is zero until the
// generation finished.
type Result struct {
	TechnicalNotes string
	UserNotes      string
	CompletedAt    time.Time
}

func (r Result) Complete() bool {
	return !r.CompletedAt.IsZero()
}

// UpstreamError reports a failed generation phase.
type UpstreamError struct {
	Phase Channel
	Err   error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("generating %s notes: %v", e.Phase, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// RemoteError is a failure reported by the server in the response body or
// in the error trailer. Its message is shown to the user verbatim.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return e.Message
}
