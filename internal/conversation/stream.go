package conversation

import (
	"bytes"
	"strings"
)

const streamDoneSentinel = "[DONE]"

// frameDecoder assembles server-sent-event frames out of an arbitrary byte
// chunking. Chunks are fed in as they arrive; complete frames are pulled out
// with Next. A frame split across chunk boundaries stays buffered until its
// terminating blank line arrives, so the decoder's output is independent of
// how the transport happened to slice the stream.
type frameDecoder struct {
	buf  bytes.Buffer
	done bool
}

// Feed appends a raw transport chunk to the accumulator.
func (d *frameDecoder) Feed(p []byte) {
	if d.done {
		return
	}
	d.buf.Write(p)
}

// Next pulls the payload of the next complete frame. ok is false when no
// complete frame is buffered yet; the partial remainder stays in the
// accumulator for the next Feed. Comment frames and empty payloads are
// skipped. Once the end-of-stream sentinel is seen, Next reports done and
// ignores any trailing bytes.
func (d *frameDecoder) Next() (payload string, ok bool) {
	for !d.done {
		raw := d.buf.Bytes()
		idx, width := frameEnd(raw)
		if idx < 0 {
			return "", false
		}
		frame := string(raw[:idx])
		d.buf.Next(idx + width)

		data, found := extractData(frame)
		if !found {
			continue
		}
		if data == streamDoneSentinel {
			d.done = true
			return "", false
		}
		return data, true
	}
	return "", false
}

// Done reports whether the end-of-stream sentinel has been decoded.
func (d *frameDecoder) Done() bool {
	return d.done
}

// frameEnd locates the blank line ending the first complete frame in raw,
// accepting LF and CRLF line endings.
func frameEnd(raw []byte) (idx, width int) {
	lf := bytes.Index(raw, []byte("\n\n"))
	crlf := bytes.Index(raw, []byte("\r\n\r\n"))
	switch {
	case lf < 0 && crlf < 0:
		return -1, 0
	case crlf >= 0 && (lf < 0 || crlf < lf):
		return crlf, 4
	default:
		return lf, 2
	}
}

// extractData joins the data lines of one SSE frame. Lines with other field
// names (event, id, retry) and comment lines are ignored.
func extractData(frame string) (string, bool) {
	var parts []string
	for _, line := range strings.Split(frame, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		part := strings.TrimPrefix(line, "data:")
		part = strings.TrimPrefix(part, " ")
		parts = append(parts, part)
	}
	if len(parts) == 0 {
		return "", false
	}
	data := strings.Join(parts, "\n")
	if data == "" {
		return "", false
	}
	return data, true
}
