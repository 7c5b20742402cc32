package intercept

import (
	"encoding/json"
	"reflect"
	"regexp"
	"time"
)

// Wrappable reports whether v is a container the layer intercepts.
//
// Only non-nil map[string]any and []any qualify. Opaque built-in values
// (times, patterns, errors, pending computations, byte buffers) are passed
// through untouched even though some of them are reference types.
func Wrappable(v any) bool {
	if isOpaque(v) {
		return false
	}
	switch c := v.(type) {
	case map[string]any:
		return c != nil
	case []any:
		return true
	default:
		return false
	}
}

func isOpaque(v any) bool {
	switch v.(type) {
	case nil:
		return true
	case time.Time, *time.Time, *regexp.Regexp, []byte, json.RawMessage, error:
		return true
	}
	return reflect.TypeOf(v).Kind() == reflect.Chan
}
