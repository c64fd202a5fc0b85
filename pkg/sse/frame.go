// Package sse provides a purpose-built SSE (Server-Sent Events) decoder for
// the obrew client engine. It turns a raw, chunked byte stream from a
// long-lived HTTP response into a discrete sequence of typed frames
// (comments, named events, data payloads) and drives per-frame callbacks.
//
// The decoder targets exactly one wire format: UTF-8 text, frames separated
// by "\n", lines classified by their leading prefix. It intentionally does
// NOT provide SSE writer or server capabilities.
//
// See the SSE specification:
// https://html.spec.whatwg.org/multipage/server-sent-events.html
package sse

import "strings"

// FrameKind classifies a decoded line by its protocol prefix.
type FrameKind int

const (
	// FrameComment is a line beginning with ":".
	FrameComment FrameKind = iota

	// FrameEvent is a line beginning with "event:", carrying an event name.
	FrameEvent

	// FrameData is a line beginning with "data:", carrying a payload.
	FrameData
)

// DoneSentinel is the data payload that logically terminates a stream even
// if the underlying connection stays open.
const DoneSentinel = "[DONE]"

const (
	commentPrefix    = ":"
	eventPrefix      = "event:"
	dataPrefix       = "data:"
	legacyDataPrefix = "data: "
)

// Frame is one classified unit of the SSE grammar. Frames are ephemeral:
// they are consumed by a callback exactly once and never stored.
type Frame struct {
	Kind FrameKind

	// Value is the comment text, event name, or data payload depending
	// on Kind, with the protocol prefix and optional single leading
	// space stripped.
	Value string
}

// IsDone reports whether the frame is a data frame carrying the logical
// stream terminator.
func (f Frame) IsDone() bool {
	return f.Kind == FrameData && f.Value == DoneSentinel
}

// classifyLine classifies a single non-empty line by its leading prefix.
// Classification order is comment, then event, then data; each line matches
// at most one class. Returns ok=false for lines matching no known prefix,
// which callers ignore rather than treat as errors.
func classifyLine(line string) (Frame, bool) {
	switch {
	case strings.HasPrefix(line, commentPrefix):
		return Frame{Kind: FrameComment, Value: strings.TrimPrefix(line[len(commentPrefix):], " ")}, true

	case strings.HasPrefix(line, eventPrefix):
		return Frame{Kind: FrameEvent, Value: strings.TrimPrefix(line[len(eventPrefix):], " ")}, true

	case strings.HasPrefix(line, dataPrefix):
		// Strict prefix match. A single leading space in the value is
		// stripped per the SSE spec.
		return Frame{Kind: FrameData, Value: strings.TrimPrefix(line[len(dataPrefix):], " ")}, true

	case strings.HasPrefix(line, legacyDataPrefix):
		// Legacy framing from one older producer. Unreachable while the
		// strict "data:" arm matches first.
		return Frame{Kind: FrameData, Value: line[len(legacyDataPrefix):]}, true
	}

	return Frame{}, false
}
