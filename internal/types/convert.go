package types

import (
	"fmt"
	"strconv"
	"strings"
)

// ToInt64 converts an interface{} to int64.
// Supports the integer kinds, float64/float32 and decimal strings, which is
// how Redis hash fields arrive. The second result is false when v cannot be
// interpreted as an integer.
func ToInt64(v interface{}) (int64, bool) {
	switch i := v.(type) {
	case int64:
		return i, true
	case int:
		return int64(i), true
	case int32:
		return int64(i), true
	case int16:
		return int64(i), true
	case int8:
		return int64(i), true
	case uint:
		return int64(i), true
	case uint64:
		return int64(i), true
	case uint32:
		return int64(i), true
	case uint16:
		return int64(i), true
	case uint8:
		return int64(i), true
	case float64:
		return int64(i), true
	case float32:
		return int64(i), true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(i), 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	case []byte:
		return ToInt64(string(i))
	default:
		return 0, false
	}
}

// ToString converts a store reply value to a string. nil becomes "".
func ToString(v interface{}) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return fmt.Sprint(s)
	}
}
