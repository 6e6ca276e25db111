package main

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// parseNumber accepts decimal, 0x hex, 0o octal and 0b binary.
func parseNumber(s string) (uint64, error) {
	v, err := strconv.ParseUint(strings.ReplaceAll(s, "_", ""), 0, 64)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", s)
	}
	return v, nil
}

// parseBytes decodes hex byte tokens: "90 90 c3", "9090c3" and "0x90,0xc3" all work.
func parseBytes(tokens ...string) ([]byte, error) {
	var sb strings.Builder
	for _, tok := range tokens {
		for _, part := range strings.Split(tok, ",") {
			part = strings.TrimPrefix(strings.TrimPrefix(part, "0x"), "0X")
			sb.WriteString(part)
		}
	}
	data, err := hex.DecodeString(sb.String())
	if err != nil {
		return nil, fmt.Errorf("invalid hex bytes %q: %w", strings.Join(tokens, " "), err)
	}
	return data, nil
}

// bytePosition is the argument index at which a method takes raw bytes
var bytePosition = map[string]int{
	"writeAt": 1,
	"inject":  0,
}

// hostArgs converts shell tokens into the loosely typed arguments hostbind
// expects. Anything that does not parse is passed through as a string so
// hostbind reports the type error.
func hostArgs(method string, tokens []string) []any {
	if method == "lookupByName" {
		out := make([]any, len(tokens))
		for i, tok := range tokens {
			out[i] = tok
		}
		return out
	}

	pos, takesBytes := bytePosition[method]
	var out []any
	for i, tok := range tokens {
		if takesBytes && i == pos {
			if data, err := parseBytes(tokens[i:]...); err == nil {
				return append(out, data)
			}
			return append(out, strings.Join(tokens[i:], " "))
		}
		if v, err := parseNumber(tok); err == nil {
			out = append(out, v)
		} else {
			out = append(out, tok)
		}
	}
	return out
}
