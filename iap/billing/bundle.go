package billing

import (
	"errors"
	"fmt"
	"math"

	"github.com/code-payments/cashier/iap"
)

var ErrUnexpectedType = errors.New("unexpected bundle value type")

// ResponseCodeOf extracts KeyResponseCode from b.
//
// A nil bundle or a missing code is reported as ResponseOK, with found set to
// false. Some billing service versions omit the code on success.
func ResponseCodeOf(b iap.Bundle) (code ResponseCode, found bool, err error) {
	if b == nil {
		return ResponseOK, false, nil
	}
	v, ok := b[KeyResponseCode]
	if !ok || v == nil {
		return ResponseOK, false, nil
	}

	switch n := v.(type) {
	case ResponseCode:
		return n, true, nil
	case int:
		return ResponseCode(n), true, nil
	case int32:
		return ResponseCode(n), true, nil
	case int64:
		return ResponseCode(n), true, nil
	case float64:
		if n != math.Trunc(n) {
			return 0, true, fmt.Errorf("%w: response code %v is not integral", ErrUnexpectedType, n)
		}
		return ResponseCode(n), true, nil
	default:
		return 0, true, fmt.Errorf("%w: response code is %T", ErrUnexpectedType, v)
	}
}

// StringList returns the string list stored under key. Both []string and
// []any (as produced by decoding) are accepted.
func StringList(b iap.Bundle, key string) ([]string, error) {
	if b == nil {
		return nil, nil
	}
	v, ok := b[key]
	if !ok || v == nil {
		return nil, nil
	}

	switch l := v.(type) {
	case []string:
		return l, nil
	case []any:
		out := make([]string, 0, len(l))
		for _, item := range l {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%w: %s contains %T", ErrUnexpectedType, key, item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %s is %T", ErrUnexpectedType, key, v)
	}
}

// String returns the string stored under key, or "" if absent.
func String(b iap.Bundle, key string) string {
	if b == nil {
		return ""
	}
	s, _ := b[key].(string)
	return s
}

// PendingIntentOf returns the buy intent in b, or nil if there is none.
func PendingIntentOf(b iap.Bundle) *PendingIntent {
	if b == nil {
		return nil
	}
	intent, _ := b[KeyBuyIntent].(*PendingIntent)
	return intent
}
