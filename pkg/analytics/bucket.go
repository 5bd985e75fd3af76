package analytics

import (
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Unknown is returned by every bucket function for NaN input.
const Unknown = "unknown"

// Bucket label sets. Every bucket function returns a member of its set or Unknown.
var (
	CountLabels    = []string{"0", "1", "2-5", "6-10", "11-50", "51-100", "100+"}
	LengthLabels   = []string{"empty", "short", "medium", "long", "very_long"}
	DurationLabels = []string{"<1s", "1-5s", "5-30s", "30s-2m", "2-10m", "10m+"}
)

// BucketCount maps a count to a coarse range. Negative and fractional
// counts below one collapse to "0".
func BucketCount(n float64) string {
	switch {
	case math.IsNaN(n):
		return Unknown
	case n < 1:
		return "0"
	case n < 2:
		return "1"
	case n <= 5:
		return "2-5"
	case n <= 10:
		return "6-10"
	case n <= 50:
		return "11-50"
	case n <= 100:
		return "51-100"
	default:
		return "100+"
	}
}

// BucketLength maps a character length to a coarse size class.
func BucketLength(n float64) string {
	switch {
	case math.IsNaN(n):
		return Unknown
	case n < 1:
		return "empty"
	case n <= 20:
		return "short"
	case n <= 200:
		return "medium"
	case n <= 2000:
		return "long"
	default:
		return "very_long"
	}
}

// BucketDuration maps a duration in milliseconds to a coarse range.
// Negative durations are treated as instantaneous.
func BucketDuration(ms float64) string {
	switch {
	case math.IsNaN(ms):
		return Unknown
	case ms < 1000:
		return "<1s"
	case ms < 5000:
		return "1-5s"
	case ms < 30000:
		return "5-30s"
	case ms < 120000:
		return "30s-2m"
	case ms < 600000:
		return "2-10m"
	default:
		return "10m+"
	}
}

// CoarseTime reduces t to its UTC weekday (0 = Sunday) and hour.
func CoarseTime(t time.Time) (dayOfWeek, hourOfDay int) {
	u := t.UTC()
	return int(u.Weekday()), u.Hour()
}

func isLabel(set []string, v string) bool {
	if v == Unknown {
		return true
	}
	for _, l := range set {
		if l == v {
			return true
		}
	}
	return false
}

// toNumber converts numeric values (any int, uint or float kind, numeric
// strings and time.Duration as milliseconds) to float64.
func toNumber(v any) (float64, bool) {
	switch x := v.(type) {
	case nil:
		return 0, false
	case time.Duration:
		return float64(x) / float64(time.Millisecond), true
	case bool:
		return 0, false
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	case reflect.String:
		f, err := strconv.ParseFloat(strings.TrimSpace(rv.String()), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

func toBool(v any) (bool, bool) {
	switch x := v.(type) {
	case bool:
		return x, true
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(x))
		return b, err == nil
	}
	return false, false
}

func toText(v any) (string, bool) {
	if v == nil {
		return "", false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.String {
		return "", false
	}
	return rv.String(), true
}
