// Package envelope normalizes the small closed family of JSON response
// envelopes the backend has produced across versions into plain text.
//
// Servers have variously answered with {"text": ...}, {"response": ...},
// {"data": "..."} and OpenAI-style {"choices": [...]} shapes. ExtractText is
// the single compatibility shim over all of them; both the stream decoder
// and the one-shot call paths use it.
package envelope

import "encoding/json"

// chatEnvelope is the tagged decode of every known response shape. Pointer
// fields distinguish "absent" from "present but empty" so that an empty
// string in a higher-priority field still wins.
type chatEnvelope struct {
	Text     *string         `json:"text"`
	Response *string         `json:"response"`
	Data     json.RawMessage `json:"data"`
	Choices  []choice        `json:"choices"`
}

type choice struct {
	Text    *string        `json:"text"`
	Message *choiceMessage `json:"message"`
}

type choiceMessage struct {
	Content string `json:"content"`
}

// ExtractText extracts the canonical text value from a JSON response
// payload. The priority order is fixed and must not be reordered; it
// decides which field wins when a payload satisfies more than one shape:
//
//  1. a direct "text" field
//  2. a direct "response" field
//  3. a "data" field when it is itself a string
//  4. the first "choices" element's "text", else its nested
//     "message.content", defaulting to empty
//  5. the payload itself, stringified
//
// Payloads that do not parse as JSON fall through to case 5, so callers
// never lose data.
func ExtractText(payload []byte) string {
	var env chatEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return string(payload)
	}

	switch {
	case env.Text != nil:
		return *env.Text

	case env.Response != nil:
		return *env.Response

	case isJSONString(env.Data):
		var s string
		if err := json.Unmarshal(env.Data, &s); err == nil {
			return s
		}
		return string(payload)

	case len(env.Choices) > 0:
		first := env.Choices[0]
		if first.Text != nil {
			return *first.Text
		}
		if first.Message != nil {
			return first.Message.Content
		}
		return ""
	}

	return string(payload)
}

func isJSONString(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	// A JSON string value begins with a quote; objects, arrays, numbers,
	// booleans and null do not.
	return raw[0] == '"'
}
