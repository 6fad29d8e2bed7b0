package llm

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// RepairJSON turns the prefix of a streamed JSON document into valid JSON.
//
// Text before the first '{' or '[' (prose, markdown fences) is skipped. If the
// root container is already closed, the document up to that point is returned
// and anything after it is ignored. Otherwise the prefix is cut back to the
// last point where every open container can be closed: an unterminated string
// value is kept and closed, while dangling keys, incomplete numbers and
// literals are dropped. ok is false when no container has been opened yet.
//
// Repairing a longer prefix of the same document never loses a value that a
// shorter prefix produced, apart from string values that keep growing.
func RepairJSON(text string) (repaired string, ok bool) {
	repaired, _, ok = scanJSON(text)
	return repaired, ok
}

// ExtractJSON returns the first complete JSON object or array in text. It
// fails when there is none or when the document is cut off.
func ExtractJSON(text string) (string, error) {
	doc, closed, ok := scanJSON(text)
	switch {
	case !ok:
		return "", fmt.Errorf("no JSON document found")
	case !closed:
		return "", fmt.Errorf("unterminated JSON document")
	}
	return doc, nil
}

// scanJSON does the work of RepairJSON and also reports whether the root
// container was closed in text itself.
func scanJSON(text string) (doc string, closed, ok bool) {
	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return "", false, false
	}
	s := text[start:]

	type frame struct {
		obj       bool
		expectKey bool
	}
	var stack []frame

	closers := ""
	refreshClosers := func() {
		b := make([]byte, 0, len(stack))
		for i := len(stack) - 1; i >= 0; i-- {
			if stack[i].obj {
				b = append(b, '}')
			} else {
				b = append(b, ']')
			}
		}
		closers = string(b)
	}

	safeLen := -1
	safeSuffix := ""
	mark := func(n int, prefix string) {
		safeLen = n
		safeSuffix = prefix + closers
	}

	var (
		inString bool
		isKey    bool
		inScalar bool
		// escape is -1 right after a backslash, >0 while \u hex digits remain.
		escape int
	)

	for i := 0; i < len(s); i++ {
		c := s[i]

		if inString {
			switch {
			case escape == -1:
				if c == 'u' {
					escape = 4
				} else {
					escape = 0
				}
			case escape > 0:
				escape--
			case c == '\\':
				escape = -1
			case c == '"':
				inString = false
				if isKey {
					stack[len(stack)-1].expectKey = false
				} else {
					mark(i+1, "")
				}
				continue
			}
			if !isKey && escape == 0 && runeEndsAt(s, i) {
				mark(i+1, `"`)
			}
			continue
		}

		if inScalar {
			if isScalarByte(c) {
				continue
			}
			inScalar = false
			mark(i, "")
		}

		switch c {
		case ' ', '\t', '\n', '\r', ':':
		case ',':
			if len(stack) > 0 && stack[len(stack)-1].obj {
				stack[len(stack)-1].expectKey = true
			}
		case '{', '[':
			stack = append(stack, frame{obj: c == '{', expectKey: c == '{'})
			refreshClosers()
			mark(i+1, "")
		case '}', ']':
			if len(stack) == 0 {
				return "", false, false
			}
			stack = stack[:len(stack)-1]
			refreshClosers()
			if len(stack) == 0 {
				return s[:i+1], true, true
			}
			mark(i+1, "")
		case '"':
			inString = true
			escape = 0
			isKey = len(stack) > 0 && stack[len(stack)-1].obj && stack[len(stack)-1].expectKey
			if !isKey {
				mark(i+1, `"`)
			}
		default:
			inScalar = true
		}
	}

	if safeLen < 0 {
		return "", false, false
	}
	return s[:safeLen] + safeSuffix, false, true
}

// isScalarByte reports whether c can continue a number or a literal.
func isScalarByte(c byte) bool {
	switch {
	case c >= '0' && c <= '9', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		return true
	case c == '-', c == '+', c == '.':
		return true
	}
	return false
}

// runeEndsAt reports whether s[i] is the last byte of a complete rune, so the
// string can be cut after it without splitting a UTF-8 sequence.
func runeEndsAt(s string, i int) bool {
	if s[i] < utf8.RuneSelf {
		return true
	}
	j := i
	for j > 0 && !utf8.RuneStart(s[j]) {
		j--
	}
	r, size := utf8.DecodeRuneInString(s[j : i+1])
	return r != utf8.RuneError && j+size == i+1
}
