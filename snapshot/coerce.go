package snapshot

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// toString is the common ground every mismatched value is coerced through
func toString(raw interface{}) string {
	switch r := raw.(type) {
	case string:
		return r
	case json.Number:
		return r.String()
	case bool:
		return strconv.FormatBool(r)
	case int64:
		return strconv.FormatInt(r, 10)
	case uint64:
		return strconv.FormatUint(r, 10)
	case float64:
		return strconv.FormatFloat(r, 'f', -1, 64)
	case int:
		return strconv.Itoa(r)
	case time.Time:
		return r.Format(time.RFC3339Nano)
	case []interface{}, map[string]interface{}, Record:
		b, err := json.Marshal(r)
		if err != nil {
			return fmt.Sprint(r)
		}
		return string(b)
	}
	return fmt.Sprint(raw)
}

func toBool(raw interface{}) (bool, bool) {
	switch r := raw.(type) {
	case nil:
		return false, false
	case bool:
		return r, true
	}
	b, err := strconv.ParseBool(strings.TrimSpace(toString(raw)))
	return b, err == nil
}

func toInt(raw interface{}) (int64, bool) {
	switch r := raw.(type) {
	case nil:
		return 0, false
	case int64:
		return r, true
	case int:
		return int64(r), true
	case uint64:
		if r > math.MaxInt64 {
			return 0, false
		}
		return int64(r), true
	case float64:
		if r != math.Trunc(r) || r < math.MinInt64 || r >= math.MaxInt64 {
			return 0, false
		}
		return int64(r), true
	}
	s := strings.TrimSpace(toString(raw))
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return toInt(f)
	}
	return 0, false
}

func toUint(raw interface{}) (uint64, bool) {
	switch r := raw.(type) {
	case nil:
		return 0, false
	case uint64:
		return r, true
	case int64:
		if r < 0 {
			return 0, false
		}
		return uint64(r), true
	case int:
		if r < 0 {
			return 0, false
		}
		return uint64(r), true
	case float64:
		if r != math.Trunc(r) || r < 0 || r >= math.MaxUint64 {
			return 0, false
		}
		return uint64(r), true
	}
	s := strings.TrimSpace(toString(raw))
	if n, err := strconv.ParseUint(s, 10, 64); err == nil {
		return n, true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return toUint(f)
	}
	return 0, false
}

func toFloat(raw interface{}) (float64, bool) {
	switch r := raw.(type) {
	case nil:
		return 0, false
	case float64:
		return r, true
	case int64:
		return float64(r), true
	case uint64:
		return float64(r), true
	case int:
		return float64(r), true
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(toString(raw)), 64)
	return f, err == nil
}

func toTime(raw interface{}) (time.Time, bool) {
	switch r := raw.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		return r, true
	}
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(toString(raw)))
	return t, err == nil
}

func toMap(raw interface{}) (Record, bool) {
	switch r := raw.(type) {
	case Record:
		return r, true
	case map[string]interface{}:
		return Record(r), true
	}
	return nil, false
}
