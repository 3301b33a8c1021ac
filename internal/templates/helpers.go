package templates

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"

	"github.com/aymerick/raymond"
)

// helpers are registered on every compiled template. They are value helpers,
// used directly or as subexpressions: {{#if (gt stats.ap 50)}}.
func helpers() map[string]interface{} {
	return map[string]interface{}{
		"eq": func(a, b interface{}) bool {
			return equal(a, b)
		},
		"gt": func(a, b interface{}) bool {
			x, okA := number(a)
			y, okB := number(b)
			return okA && okB && x > y
		},
		"divide": func(a, b interface{}) float64 {
			x, _ := number(a)
			y, ok := number(b)
			if !ok || y == 0 {
				return 0
			}
			return x / y
		},
		"divideRoundUp": func(a, b interface{}) int {
			x, _ := number(a)
			y, ok := number(b)
			if !ok || y == 0 {
				return 0
			}
			return int(math.Ceil(x / y))
		},
		"add": func(a, b interface{}) float64 {
			x, _ := number(a)
			y, _ := number(b)
			return x + y
		},
		"darken": func(color, factor interface{}) string {
			f, ok := number(factor)
			if !ok {
				f = DarkenFactor
			}
			return Darken(raymond.Str(color), f)
		},
		"json": func(v interface{}) raymond.SafeString {
			b, err := json.Marshal(v)
			if err != nil {
				return ""
			}
			return raymond.SafeString(b)
		},
	}
}

func number(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case int32:
		return float64(t), true
	case uint64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

func equal(a, b interface{}) bool {
	if x, ok := number(a); ok {
		if _, isString := a.(string); !isString {
			if y, ok := number(b); ok {
				return x == y
			}
		}
	}
	if reflect.DeepEqual(a, b) {
		return true
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}
