// Package jsonrepair extracts a JSON value from free-form model output and
// closes it when the output was cut off mid-value.
package jsonrepair

import "strings"

// Kind is the type of the payload root.
type Kind int

const (
	None Kind = iota
	Object
	Array
)

func (k Kind) String() string {
	switch k {
	case Object:
		return "object"
	case Array:
		return "array"
	default:
		return "none"
	}
}

// Extract returns the first JSON object or array embedded in text along
// with its kind. Prose before the opening character and after the matching
// close is discarded. A value that never closes is passed through Repair and
// trimmed to its last closing character. Extract does not validate the
// result; callers still parse it.
func Extract(text string) (string, Kind) {
	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return "", None
	}
	kind := Object
	closer := byte('}')
	if text[start] == '[' {
		kind = Array
		closer = ']'
	}

	var sc scanner
	for i := start; i < len(text); i++ {
		if sc.step(text[i]) {
			return text[start : i+1], kind
		}
	}

	repaired := Repair(text[start:])
	if idx := strings.LastIndexByte(repaired, closer); idx >= 0 {
		repaired = repaired[:idx+1]
	}
	return repaired, kind
}

// Repair appends the characters a truncated JSON value needs to become
// structurally complete: a closing quote for an open string, a null for a
// dangling key or colon, and the missing closers in reverse nesting order.
// A trailing comma is dropped. Input that is already balanced is returned
// with only trailing whitespace removed.
func Repair(s string) string {
	var sc scanner
	for i := 0; i < len(s); i++ {
		sc.step(s[i])
	}

	out := s
	if sc.inString {
		switch {
		case sc.escaped:
			out = out[:len(out)-1]
		case sc.hexLeft > 0:
			// Drop the partial \uXXXX escape.
			out = out[:len(out)-(6-sc.hexLeft)]
		}
		out += `"`
		sc.closeString()
	}
	out = strings.TrimRight(out, " \t\r\n")
	if strings.HasSuffix(out, ",") {
		out = strings.TrimRight(out[:len(out)-1], " \t\r\n")
	}

	if top := sc.top(); top != nil && top.open == '{' {
		switch {
		case top.pendingKey:
			out += ":null"
		case strings.HasSuffix(out, ":"):
			out += "null"
		}
	}

	var b strings.Builder
	b.WriteString(out)
	for i := len(sc.stack) - 1; i >= 0; i-- {
		if sc.stack[i].open == '{' {
			b.WriteByte('}')
		} else {
			b.WriteByte(']')
		}
	}
	return b.String()
}

type frame struct {
	open       byte
	afterColon bool // a value is being read for the current member
	pendingKey bool // a key string was read with no colon yet
}

// scanner tracks string and nesting state one byte at a time. Multi-byte
// UTF-8 sequences never contain ASCII bytes, so byte scanning is safe.
type scanner struct {
	stack    []frame
	inString bool
	escaped  bool
	hexLeft  int // hex digits still expected by a \u escape
}

func (sc *scanner) top() *frame {
	if len(sc.stack) == 0 {
		return nil
	}
	return &sc.stack[len(sc.stack)-1]
}

func (sc *scanner) closeString() {
	sc.inString = false
	sc.escaped = false
	sc.hexLeft = 0
	if top := sc.top(); top != nil && top.open == '{' && !top.afterColon {
		top.pendingKey = true
	}
}

// step consumes one byte and reports whether it closed the root value.
func (sc *scanner) step(c byte) bool {
	if sc.inString {
		if sc.hexLeft > 0 {
			if isHex(c) {
				sc.hexLeft--
				return false
			}
			sc.hexLeft = 0
		}
		switch {
		case sc.escaped:
			sc.escaped = false
			if c == 'u' {
				sc.hexLeft = 4
			}
		case c == '\\':
			sc.escaped = true
		case c == '"':
			sc.closeString()
		}
		return false
	}

	switch c {
	case '"':
		sc.inString = true
	case '{', '[':
		sc.stack = append(sc.stack, frame{open: c})
	case '}', ']':
		top := sc.top()
		if top == nil {
			return false
		}
		if (c == '}' && top.open != '{') || (c == ']' && top.open != '[') {
			return false
		}
		sc.stack = sc.stack[:len(sc.stack)-1]
		return len(sc.stack) == 0
	case ':':
		if top := sc.top(); top != nil {
			top.afterColon = true
			top.pendingKey = false
		}
	case ',':
		if top := sc.top(); top != nil {
			top.afterColon = false
			top.pendingKey = false
		}
	}
	return false
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}
