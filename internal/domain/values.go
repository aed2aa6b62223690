package domain

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// Room names.
const (
	AdminRoom       = "admin"
	EventRoomPrefix = "event-"
)

// TimestampLayout renders server timestamps as ISO-8601 UTC with milliseconds.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Placeholders used when a summarized field is missing or null.
const (
	displayUndefined = "undefined"
	displayNull      = "null"
)

// FormatTimestamp renders t in TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// EventRoom returns the room name for an event id.
func EventRoom(eventID string) string {
	return EventRoomPrefix + eventID
}

// Truthy reports whether a decoded JSON value counts as set.
// null, false, 0, NaN and "" are not set; objects and arrays always are.
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0 && !math.IsNaN(t)
	case json.Number:
		f, err := t.Float64()
		return err != nil || (f != 0 && !math.IsNaN(f))
	default:
		return true
	}
}

// FormatValue renders a decoded JSON value as text.
// Strings are used verbatim, numbers in their shortest decimal form,
// null as "null", everything else as compact JSON.
func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return displayNull
	case string:
		return t
	case float64:
		return formatNumber(t)
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return formatNumber(f)
		}
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return displayUndefined
		}
		return string(b)
	}
}

// formatNumber renders f the way JavaScript stringifies numbers: -0 is "0",
// and magnitudes from 1e21 up or below 1e-6 use exponent form ("1e+21").
func formatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		return "0"
	}

	if abs := math.Abs(f); abs >= 1e21 || abs < 1e-6 {
		// Go pads the exponent to two digits; JavaScript does not.
		s := strconv.FormatFloat(f, 'e', -1, 64)
		mantissa, exp, _ := strings.Cut(s, "e")
		sign, digits := exp[:1], strings.TrimLeft(exp[1:], "0")
		return mantissa + "e" + sign + digits
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Display renders payload[key] for a human-readable summary;
// a missing key renders as "undefined".
func Display(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok {
		return displayUndefined
	}
	return FormatValue(v)
}

// Stamp returns a copy of payload with the server timestamp set.
func Stamp(payload map[string]any, ts string) map[string]any {
	out := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		out[k] = v
	}
	out["timestamp"] = ts
	return out
}
