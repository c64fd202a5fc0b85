package sse

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/dieharders/obrew-go/pkg/envelope"
)

// readChunkSize is the transport read size. Lines routinely straddle chunk
// boundaries at any size, so correctness never depends on this value.
const readChunkSize = 4 * 1024

// Callbacks are the per-frame hooks invoked by Decode. Any field may be nil.
type Callbacks struct {
	// OnComment receives the text of ":" comment lines (keep-alives).
	OnComment func(text string)

	// OnEvent receives the name from "event:" lines.
	OnEvent func(name string)

	// OnData receives the payload of each "data:" line, invoked
	// synchronously before any text accumulation.
	OnData func(payload string)

	// OnFinish is invoked exactly once on clean, non-aborted termination:
	// source exhausted or the [DONE] sentinel observed. It never fires on
	// cancellation or on a transport error.
	OnFinish func()
}

// Decoder decodes a line-oriented SSE byte stream into frames.
//
// The decoder maintains a carry-over buffer across chunk boundaries: a chunk
// may end mid-line, and the partial tail is prefixed onto the next chunk
// before re-splitting. Decoding the same logical stream split into 1-byte
// chunks or delivered as one chunk yields identical frame sequences.
type Decoder struct {
	logger *zap.Logger
}

// NewDecoder returns a Decoder. A nil logger is replaced with a no-op logger.
func NewDecoder(logger *zap.Logger) *Decoder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Decoder{logger: logger}
}

// Decode pulls chunks from src until the source is exhausted, ctx is
// cancelled, or a [DONE] data payload is observed, dispatching one callback
// per classified line. Lines matching no known prefix are ignored.
//
// Decode takes ownership of src: when src implements io.Closer it is closed
// on every exit path. Cancellation is cooperative: ctx is polled before
// each chunk is processed, and a fired ctx halts further callback dispatch.
// The returned error is nil on clean termination, ctx.Err() on cancellation,
// and the wrapped transport error otherwise.
func (d *Decoder) Decode(ctx context.Context, src io.Reader, cb Callbacks) error {
	defer func() {
		if closer, ok := src.(io.Closer); ok {
			_ = closer.Close()
		}
	}()

	buf := make([]byte, readChunkSize)
	var carry []byte

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, readErr := src.Read(buf)
		if n > 0 {
			carry = append(carry, buf[:n]...)

			var terminated bool
			carry, terminated = d.drainLines(carry, cb)
			if terminated {
				d.finish(cb)
				return nil
			}
		}

		if readErr == io.EOF {
			// Stream ended without a trailing newline: the remainder
			// is one final complete line.
			if len(carry) > 0 {
				if d.processLine(string(carry), cb) {
					d.finish(cb)
					return nil
				}
			}
			d.finish(cb)
			return nil
		}
		if readErr != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("reading stream: %w", readErr)
		}
	}
}

// DecodeText decodes like Decode while also accumulating the normalized text
// content of every data frame. Each payload is run through the envelope
// normalizer; payloads that do not parse as JSON contribute their raw string
// form, so data is never dropped. The caller's OnData still fires first.
func (d *Decoder) DecodeText(ctx context.Context, src io.Reader, cb Callbacks) (string, error) {
	var text strings.Builder

	inner := cb
	userOnData := cb.OnData
	inner.OnData = func(payload string) {
		if userOnData != nil {
			userOnData(payload)
		}
		text.WriteString(envelope.ExtractText([]byte(payload)))
	}

	err := d.Decode(ctx, src, inner)
	return text.String(), err
}

// drainLines processes every complete line in carry and returns the
// remaining partial tail. terminated is true when a [DONE] payload was seen.
func (d *Decoder) drainLines(carry []byte, cb Callbacks) (rest []byte, terminated bool) {
	for {
		idx := bytes.IndexByte(carry, '\n')
		if idx < 0 {
			return carry, false
		}

		line := string(bytes.TrimSuffix(carry[:idx], []byte("\r")))
		carry = carry[idx+1:]

		if d.processLine(line, cb) {
			return carry, true
		}
	}
}

// processLine classifies and dispatches a single line. Returns true when the
// line carries the logical stream terminator.
func (d *Decoder) processLine(line string, cb Callbacks) bool {
	if line == "" {
		return false
	}

	frame, ok := classifyLine(line)
	if !ok {
		// Best-effort protocol: unknown lines are noise, not errors.
		d.logger.Debug("ignoring unclassified stream line", zap.String("line", line))
		return false
	}

	switch frame.Kind {
	case FrameComment:
		if cb.OnComment != nil {
			cb.OnComment(frame.Value)
		}
	case FrameEvent:
		if cb.OnEvent != nil {
			cb.OnEvent(frame.Value)
		}
	case FrameData:
		if frame.IsDone() {
			return true
		}
		if cb.OnData != nil {
			cb.OnData(frame.Value)
		}
	}

	return false
}

func (d *Decoder) finish(cb Callbacks) {
	if cb.OnFinish != nil {
		cb.OnFinish()
	}
}
