package providers

import (
	"bytes"
	"encoding/json"
	"log/slog"

	"github.com/ollama/ollama/api"
)

// StreamDecoder turns newline-delimited JSON chat chunks into content
// fragments. Network buffers may split an object anywhere; the unconsumed
// tail is carried into the next Feed. Once an object with done=true is
// seen, all further input is ignored.
type StreamDecoder struct {
	tail []byte
	done bool
}

// Feed consumes one network chunk and returns the fragments it completed,
// plus whether the backend has signalled completion.
func (d *StreamDecoder) Feed(chunk []byte) ([]string, bool) {
	if d.done {
		return nil, true
	}
	data := append(d.tail, chunk...)
	d.tail = nil

	var out []string
	for len(data) > 0 {
		idx := bytes.IndexByte(data, '\n')
		if idx < 0 {
			break
		}
		line := data[:idx]
		data = data[idx+1:]
		frag, ok := d.decodeLine(line, true)
		if ok && frag != "" {
			out = append(out, frag)
		}
		if d.done {
			return out, true
		}
	}

	// A trailing piece without newline may already be a whole object.
	if len(bytes.TrimSpace(data)) > 0 {
		if frag, ok := d.decodeLine(data, false); ok {
			if frag != "" {
				out = append(out, frag)
			}
		} else {
			d.tail = append([]byte(nil), data...)
		}
	}
	return out, d.done
}

// Flush decodes whatever is left at end of stream.
func (d *StreamDecoder) Flush() []string {
	if d.done || len(bytes.TrimSpace(d.tail)) == 0 {
		d.tail = nil
		return nil
	}
	tail := d.tail
	d.tail = nil
	if frag, ok := d.decodeLine(tail, true); ok && frag != "" {
		return []string{frag}
	}
	return nil
}

// Done reports whether a completion marker has been seen.
func (d *StreamDecoder) Done() bool { return d.done }

func (d *StreamDecoder) decodeLine(line []byte, complete bool) (string, bool) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return "", true
	}
	var resp api.ChatResponse
	if err := json.Unmarshal(line, &resp); err != nil {
		if complete {
			slog.Warn("ollama stream: skipping malformed chunk", "err", err, "len", len(line))
		}
		return "", false
	}
	if resp.Done {
		d.done = true
	}
	return resp.Message.Content, true
}
