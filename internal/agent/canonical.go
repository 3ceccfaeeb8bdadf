package agent

import (
	"bytes"
	"encoding/json"
	"strings"
)

// CanonicalArgs produces a deterministic serialization of a capability's
// arguments. Two argument payloads that differ only in key order or
// insignificant whitespace canonicalize to the same string. The result,
// paired with the capability name, is the identity used for duplicate
// detection; call IDs play no part.
func CanonicalArgs(input json.RawMessage) string {
	trimmed := bytes.TrimSpace(input)
	if len(trimmed) == 0 {
		return "{}"
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		// Not valid JSON; the raw text is the best identity available.
		return strings.TrimSpace(string(trimmed))
	}

	// encoding/json emits map keys in sorted order, which is exactly the
	// canonical form needed. UseNumber above keeps numeric literals as
	// written so 1 and 1.0 stay distinct.
	out, err := json.Marshal(v)
	if err != nil {
		return strings.TrimSpace(string(trimmed))
	}
	return string(out)
}

// CallKey is the duplicate-detection identity for a tool call.
func CallKey(name string, input json.RawMessage) string {
	return name + "\x00" + CanonicalArgs(input)
}
