package restore

import (
	"bytes"
	"math"
	"strconv"
	"time"
)

// maxMillis is the largest distance from the epoch a timestamp may have
const maxMillis = 8.64e15

// layouts accepted for string timestamps, tried in order. Zoneless
// layouts are read as UTC.
var layouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Timestamp is a point in time as delivered by the upstream. It is either
// a string (RFC 3339 and a few relaxed variants) or a number of
// milliseconds since the Unix epoch.
type Timestamp struct {
	str   string
	num   float64
	isNum bool
	set   bool
}

// ------------------------------------------------------------------------------------------------
// ~ Constructor
// ------------------------------------------------------------------------------------------------

func TimestampFromString(v string) Timestamp {
	return Timestamp{str: v, set: true}
}

func TimestampFromMillis(v float64) Timestamp {
	return Timestamp{num: v, isNum: true, set: true}
}

// ------------------------------------------------------------------------------------------------
// ~ Public methods
// ------------------------------------------------------------------------------------------------

// Time returns the parsed instant and false if the value is absent or
// cannot be parsed.
func (t Timestamp) Time() (time.Time, bool) {
	if !t.set {
		return time.Time{}, false
	}
	if t.isNum {
		if math.IsNaN(t.num) || math.Abs(t.num) > maxMillis {
			return time.Time{}, false
		}
		return time.UnixMilli(int64(t.num)).UTC(), true
	}
	for _, layout := range layouts {
		if v, err := time.Parse(layout, t.str); err == nil {
			return v, true
		}
	}
	return time.Time{}, false
}

// Valid reports whether the timestamp parses.
func (t Timestamp) Valid() bool {
	_, ok := t.Time()
	return ok
}

// After reports whether t is strictly later than o. It is false whenever
// either side is invalid.
func (t Timestamp) After(o Timestamp) bool {
	a, ok := t.Time()
	if !ok {
		return false
	}
	b, ok := o.Time()
	if !ok {
		return false
	}
	return a.After(b)
}

func (t Timestamp) String() string {
	if !t.set {
		return ""
	}
	if t.isNum {
		return strconv.FormatFloat(t.num, 'f', -1, 64)
	}
	return t.str
}

func (t Timestamp) IsZero() bool {
	return !t.set
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	switch {
	case !t.set:
		return []byte("null"), nil
	case t.isNum:
		return []byte(strconv.FormatFloat(t.num, 'f', -1, 64)), nil
	default:
		return json.Marshal(t.str)
	}
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*t = Timestamp{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = TimestampFromString(s)
		return nil
	}
	n, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		// anything else is kept but never parses
		*t = TimestampFromString(string(data))
		return nil //nolint:nilerr
	}
	*t = TimestampFromMillis(n)
	return nil
}
