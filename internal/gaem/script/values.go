package script

import (
	"fmt"
	"math"
	"sort"

	"github.com/Shopify/go-lua"
)

// MaxValueDepth bounds table nesting when values cross the host boundary.
// Cyclic tables fail at this depth.
const MaxValueDepth = 32

// stackPerLevel is the room one table level needs: the table, a key, and a
// value.
const stackPerLevel = 3

// toValue converts the Lua value at index into nil, bool, int64, float64,
// string, []any, or map[string]any. Functions, userdata, and threads are
// rejected.
func toValue(l *lua.State, index, depth int) (any, error) {
	switch l.TypeOf(index) {
	case lua.TypeNil, lua.TypeNone:
		return nil, nil
	case lua.TypeBoolean:
		return l.ToBoolean(index), nil
	case lua.TypeNumber:
		value, _ := l.ToNumber(index)
		return normalizeNumber(value), nil
	case lua.TypeString:
		value, _ := l.ToString(index)
		return value, nil
	case lua.TypeTable:
		return tableToValue(l, index, depth)
	default:
		return nil, fmt.Errorf("cannot store a %s", lua.TypeNameOf(l, index))
	}
}

func tableToValue(l *lua.State, index, depth int) (any, error) {
	if depth >= MaxValueDepth {
		return nil, fmt.Errorf("tables nested deeper than %d levels", MaxValueDepth)
	}
	if !l.CheckStack(stackPerLevel) {
		return nil, fmt.Errorf("table too large to convert")
	}
	index = l.AbsIndex(index)

	isArray := true
	maxIndex := 0
	count := 0
	l.PushNil()
	for l.Next(index) {
		count++
		if isArray {
			idx, ok := arrayIndex(l, -2)
			if !ok {
				isArray = false
			} else if idx > maxIndex {
				maxIndex = idx
			}
		}
		l.Pop(1)
	}

	if count == 0 {
		return map[string]any{}, nil
	}

	if isArray && maxIndex == count {
		out := make([]any, 0, maxIndex)
		for i := 1; i <= maxIndex; i++ {
			l.RawGetInt(index, i)
			value, err := toValue(l, -1, depth+1)
			l.Pop(1)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out = append(out, value)
		}
		return out, nil
	}

	out := make(map[string]any, count)
	l.PushNil()
	for l.Next(index) {
		if l.TypeOf(-2) != lua.TypeString {
			l.Pop(2)
			return nil, fmt.Errorf("table keys must be strings or a 1..n sequence")
		}
		key, _ := l.ToString(-2)
		value, err := toValue(l, -1, depth+1)
		if err != nil {
			l.Pop(2)
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		out[key] = value
		l.Pop(1)
	}
	return out, nil
}

func arrayIndex(l *lua.State, index int) (int, bool) {
	if l.TypeOf(index) != lua.TypeNumber {
		return 0, false
	}
	n, _ := l.ToNumber(index)
	if n < 1 || n != math.Trunc(n) || n > math.MaxInt32 {
		return 0, false
	}
	return int(n), true
}

func normalizeNumber(value float64) any {
	if value == math.Trunc(value) && math.Abs(value) < 1<<53 {
		return int64(value)
	}
	return value
}

// pushValue pushes a host value onto the Lua stack. Unknown types push nil.
func pushValue(l *lua.State, value any, depth int) {
	if depth > MaxValueDepth {
		l.PushNil()
		return
	}
	switch v := value.(type) {
	case nil:
		l.PushNil()
	case bool:
		l.PushBoolean(v)
	case string:
		l.PushString(v)
	case int:
		l.PushNumber(float64(v))
	case int64:
		l.PushNumber(float64(v))
	case uint64:
		l.PushNumber(float64(v))
	case float32:
		l.PushNumber(float64(v))
	case float64:
		l.PushNumber(v)
	case Vec2:
		if !l.CheckStack(stackPerLevel) {
			l.PushNil()
			return
		}
		l.CreateTable(0, 2)
		l.PushNumber(v.X)
		l.SetField(-2, "x")
		l.PushNumber(v.Y)
		l.SetField(-2, "y")
	case []any:
		if !l.CheckStack(stackPerLevel) {
			l.PushNil()
			return
		}
		l.CreateTable(len(v), 0)
		for i, item := range v {
			pushValue(l, item, depth+1)
			l.RawSetInt(-2, i+1)
		}
	case map[string]any:
		if !l.CheckStack(stackPerLevel) {
			l.PushNil()
			return
		}
		l.CreateTable(0, len(v))
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			pushValue(l, v[key], depth+1)
			l.SetField(-2, key)
		}
	default:
		l.PushNil()
	}
}
