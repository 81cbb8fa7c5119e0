package scripting

import "strings"

// StripLeadingComment normalizes source text for the compiled-function
// cache: leading whitespace and at most one leading /* ... */ block are
// removed. There is no nested-comment handling; an unterminated block
// comment consumes the remainder of the text.
func StripLeadingComment(code string) string {
	code = strings.TrimLeft(code, " \t\r\n")
	if !strings.HasPrefix(code, "/*") {
		return code
	}
	end := strings.Index(code[2:], "*/")
	if end < 0 {
		return ""
	}
	return strings.TrimLeft(code[2+end+2:], " \t\r\n")
}

// HasReturnStatement reports whether code contains a bare "return"
// keyword outside of string literals. Used by callers that need to
// decide whether to wrap a snippet in a function body.
func HasReturnStatement(code string) bool {
	x := strings.Index(code, "return")
	if x < 0 {
		return false
	}

	doubleQuotes := 0
	singleQuotes := 0
	for i := 0; i < x; i++ {
		switch code[i] {
		case '"':
			doubleQuotes++
		case '\'':
			singleQuotes++
		}
	}
	// inside an open string literal
	if doubleQuotes%2 != 0 || singleQuotes%2 != 0 {
		return false
	}

	// "return" must start the text or follow whitespace, and must not
	// run into an identifier
	if x > 0 && !isSourceSpace(code[x-1]) {
		return false
	}
	after := x + len("return")
	if after < len(code) && (isAlpha(code[after]) || isDigit(code[after])) {
		return false
	}
	return true
}

// SkipWhitespaceAndLineComments advances past leading whitespace and //
// line comments, returning the remaining source.
func SkipWhitespaceAndLineComments(code string) string {
	i := 0
	for i < len(code) {
		for i < len(code) && isSourceSpace(code[i]) {
			i++
		}
		if i+1 >= len(code) || code[i] != '/' || code[i+1] != '/' {
			break
		}
		for i < len(code) && code[i] != '\n' {
			i++
		}
	}
	return code[i:]
}

func isSourceSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r' || b == '\v' || b == '\f'
}

func isAlpha(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}
