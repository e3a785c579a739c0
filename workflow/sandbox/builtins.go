package sandbox

import (
	"math"
	"sort"
	"strconv"
	"strings"
)

type builtinFunc func(pos int, args []any) (any, error)

// builtins is the closed allow-list of pure functions an expression may call.
var builtins = map[string]builtinFunc{
	"abs":    builtinAbs,
	"min":    func(pos int, args []any) (any, error) { return extreme("min", -1, pos, args) },
	"max":    func(pos int, args []any) (any, error) { return extreme("max", 1, pos, args) },
	"round":  builtinRound,
	"sum":    builtinSum,
	"len":    builtinLen,
	"sorted": builtinSorted,
	"int":    builtinInt,
	"float":  builtinFloat,
	"str":    builtinStr,
	"bool":   builtinBool,
	"list":   builtinList,
	"tuple":  builtinList,
	"all":    func(pos int, args []any) (any, error) { return quantifier("all", true, pos, args) },
	"any":    func(pos int, args []any) (any, error) { return quantifier("any", false, pos, args) },
}

// AllowedFunctions returns the sorted names of callable functions.
func AllowedFunctions() []string {
	out := make([]string, 0, len(builtins))
	for name := range builtins {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func arity(name string, pos int, args []any, lo, hi int) error {
	if len(args) < lo || len(args) > hi {
		if lo == hi {
			return evalErrorf(pos, "%s() takes %d argument(s), got %d", name, lo, len(args))
		}
		return evalErrorf(pos, "%s() takes %d to %d arguments, got %d", name, lo, hi, len(args))
	}
	return nil
}

func builtinAbs(pos int, args []any) (any, error) {
	if err := arity("abs", pos, args, 1, 1); err != nil {
		return nil, err
	}
	i, f, isInt, ok := numeric(args[0])
	if !ok {
		return nil, evalErrorf(pos, "bad operand type for abs(): %s", typeName(args[0]))
	}
	if isInt {
		if i == math.MinInt64 {
			return nil, evalErrorf(pos, "integer overflow")
		}
		if i < 0 {
			return -i, nil
		}
		return i, nil
	}
	return math.Abs(f), nil
}

func extreme(name string, want int, pos int, args []any) (any, error) {
	items := args
	if len(args) == 1 {
		var err error
		if items, err = iterate(args[0], pos); err != nil {
			return nil, err
		}
	}
	if len(items) == 0 {
		return nil, evalErrorf(pos, "%s() arg is an empty sequence", name)
	}
	best := items[0]
	for _, item := range items[1:] {
		c, err := order(item, best, "<", pos)
		if err != nil {
			return nil, err
		}
		if c == want {
			best = item
		}
	}
	return best, nil
}

func builtinRound(pos int, args []any) (any, error) {
	if err := arity("round", pos, args, 1, 2); err != nil {
		return nil, err
	}
	i, f, isInt, ok := numeric(args[0])
	if !ok {
		return nil, evalErrorf(pos, "type %s doesn't define round()", typeName(args[0]))
	}
	if len(args) == 1 || args[1] == nil {
		if isInt {
			return i, nil
		}
		if math.IsInf(f, 0) || math.IsNaN(f) {
			return nil, evalErrorf(pos, "cannot round %s", formatFloat(f))
		}
		return int64(math.RoundToEven(f)), nil
	}
	digits, ok := args[1].(int64)
	if !ok {
		return nil, evalErrorf(pos, "round() ndigits must be int, not %s", typeName(args[1]))
	}
	if isInt && digits >= 0 {
		return i, nil
	}
	scale := math.Pow(10, float64(digits))
	out := math.RoundToEven(f*scale) / scale
	if math.IsInf(out, 0) || math.IsNaN(out) {
		return nil, evalErrorf(pos, "round() ndigits %d out of range for %s", digits, formatFloat(f))
	}
	return out, nil
}

func builtinSum(pos int, args []any) (any, error) {
	if err := arity("sum", pos, args, 1, 2); err != nil {
		return nil, err
	}
	items, err := iterate(args[0], pos)
	if err != nil {
		return nil, err
	}
	var total any = int64(0)
	if len(args) == 2 {
		total = args[1]
	}
	for _, item := range items {
		if _, ok := item.(string); ok {
			return nil, evalErrorf(pos, "sum() can't sum strings")
		}
		if total, err = arith("+", total, item, pos); err != nil {
			return nil, err
		}
	}
	return total, nil
}

func builtinLen(pos int, args []any) (any, error) {
	if err := arity("len", pos, args, 1, 1); err != nil {
		return nil, err
	}
	switch x := normalize(args[0]).(type) {
	case string:
		return int64(len([]rune(x))), nil
	case []any:
		return int64(len(x)), nil
	case map[string]any:
		return int64(len(x)), nil
	default:
		return nil, evalErrorf(pos, "object of type %s has no len()", typeName(x))
	}
}

func builtinSorted(pos int, args []any) (any, error) {
	if err := arity("sorted", pos, args, 1, 1); err != nil {
		return nil, err
	}
	items, err := iterate(args[0], pos)
	if err != nil {
		return nil, err
	}
	var sortErr error
	sort.SliceStable(items, func(a, b int) bool {
		c, err := order(items[a], items[b], "<", pos)
		if err != nil && sortErr == nil {
			sortErr = err
		}
		return c < 0
	})
	if sortErr != nil {
		return nil, sortErr
	}
	return items, nil
}

func builtinInt(pos int, args []any) (any, error) {
	if err := arity("int", pos, args, 0, 1); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return int64(0), nil
	}
	switch x := normalize(args[0]).(type) {
	case string:
		v, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return nil, evalErrorf(pos, "invalid literal for int(): %q", x)
		}
		return v, nil
	default:
		i, f, isInt, ok := numeric(x)
		if !ok {
			return nil, evalErrorf(pos, "int() argument must be a string or a number, not %s", typeName(x))
		}
		if isInt {
			return i, nil
		}
		if math.IsInf(f, 0) || math.IsNaN(f) || f >= math.MaxInt64 || f < math.MinInt64 {
			return nil, evalErrorf(pos, "cannot convert %s to int", formatFloat(f))
		}
		return int64(f), nil
	}
}

func builtinFloat(pos int, args []any) (any, error) {
	if err := arity("float", pos, args, 0, 1); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return 0.0, nil
	}
	switch x := normalize(args[0]).(type) {
	case string:
		v, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return nil, evalErrorf(pos, "could not convert string to float: %q", x)
		}
		return v, nil
	default:
		_, f, _, ok := numeric(x)
		if !ok {
			return nil, evalErrorf(pos, "float() argument must be a string or a number, not %s", typeName(x))
		}
		return f, nil
	}
}

func builtinStr(pos int, args []any) (any, error) {
	if err := arity("str", pos, args, 0, 1); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return "", nil
	}
	return Format(args[0]), nil
}

func builtinBool(pos int, args []any) (any, error) {
	if err := arity("bool", pos, args, 0, 1); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return false, nil
	}
	return Truthy(args[0]), nil
}

func builtinList(pos int, args []any) (any, error) {
	if err := arity("list", pos, args, 0, 1); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return []any{}, nil
	}
	return iterate(args[0], pos)
}

func quantifier(name string, all bool, pos int, args []any) (any, error) {
	if err := arity(name, pos, args, 1, 1); err != nil {
		return nil, err
	}
	items, err := iterate(args[0], pos)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		if Truthy(item) != all {
			return !all, nil
		}
	}
	return all, nil
}
