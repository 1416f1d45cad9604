package worker

import (
	"path/filepath"
	"strings"
)

// argString extracts a string positional argument from a decoded packet's
// Args slice. JSON-decoded values arrive as interface{}; this guards
// against malformed or missing arguments rather than panicking, per
// spec §7 ("Application must not crash on any malformed or malicious
// packet").
func argString(args []interface{}, i int) (string, bool) {
	if i >= len(args) {
		return "", false
	}
	s, ok := args[i].(string)
	return s, ok
}

// argInt64 extracts a numeric positional argument. encoding/json decodes
// all JSON numbers as float64 when the target is interface{}.
func argInt64(args []interface{}, i int) (int64, bool) {
	if i >= len(args) {
		return 0, false
	}
	switch v := args[i].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	default:
		return 0, false
	}
}

func suffixOf(name string) string {
	ext := filepath.Ext(name)
	return strings.TrimPrefix(ext, ".")
}
