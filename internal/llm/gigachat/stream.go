package gigachat

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"strings"
)

// maxSSELineSize bounds a single event-stream line; generation deltas are
// small but tool payloads can run long.
const maxSSELineSize = 1024 * 1024

// doneMarker terminates a GigaChat event stream.
const doneMarker = "[DONE]"

// streamEvent is one decoded frame of a streaming response.
type streamEvent struct {
	Delta string
	Final bool
}

// StreamDecoder assembles complete SSE frames out of arbitrary-sized reads
// and decodes them into streamEvents. It is single-use: decoding a new
// transport requires a new decoder.
type StreamDecoder struct {
	scanner  *bufio.Scanner
	finished bool
}

// NewStreamDecoder creates a decoder over the raw response body.
func NewStreamDecoder(r io.Reader) *StreamDecoder {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxSSELineSize)
	return &StreamDecoder{scanner: sc}
}

// Next returns the next decoded event. The event carrying the terminal
// marker has Final set; data after it is ignored and subsequent calls
// return io.EOF. Keep-alive frames (blank lines, comments, empty deltas)
// are skipped. A read failure or truncation before the terminal marker is
// a KindNetwork error; an undecodable frame is a KindStreamParse error. In
// both cases events already returned remain valid.
func (d *StreamDecoder) Next() (streamEvent, error) {
	if d.finished {
		return streamEvent{}, io.EOF
	}

	for d.scanner.Scan() {
		line := strings.TrimRight(d.scanner.Text(), "\r")

		// Blank separator lines and SSE comments carry no payload.
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			// Other SSE fields (event:, id:) are not used by the provider.
			continue
		}
		data = strings.TrimSpace(data)

		if data == doneMarker {
			d.finished = true
			return streamEvent{Final: true}, nil
		}

		delta, err := decodeDelta(data)
		if err != nil {
			d.finished = true
			return streamEvent{}, &Error{Kind: KindStreamParse, Msg: "malformed stream frame", Cause: err}
		}
		if delta == "" {
			// Role-only or empty deltas act as keep-alives.
			continue
		}
		return streamEvent{Delta: delta}, nil
	}

	d.finished = true
	if err := d.scanner.Err(); err != nil {
		return streamEvent{}, &Error{Kind: KindNetwork, Msg: "reading stream", Cause: err}
	}
	// EOF without the terminal marker means the connection dropped mid-stream.
	return streamEvent{}, &Error{Kind: KindNetwork, Msg: "stream closed before terminal marker", Cause: io.ErrUnexpectedEOF}
}

// streamPayload is the incremental wire format of a streaming response.
type streamPayload struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

func decodeDelta(data string) (string, error) {
	var p streamPayload
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return "", err
	}
	if len(p.Choices) == 0 {
		return "", nil
	}
	return p.Choices[0].Delta.Content, nil
}

// IsStreamTruncated reports whether err marks a connection drop before the
// terminal marker.
func IsStreamTruncated(err error) bool {
	var ge *Error
	return errors.As(err, &ge) && ge.Kind == KindNetwork && errors.Is(ge.Cause, io.ErrUnexpectedEOF)
}
