package sandbox

import (
	"math"
	"strings"
)

type evaluator struct {
	bindings map[string]any
}

func (e *evaluator) eval(n node) (any, error) {
	switch n := n.(type) {
	case *literalNode:
		return n.value, nil

	case *nameNode:
		v, ok := e.bindings[n.name]
		if !ok {
			return nil, &UnboundError{Name: n.name, Pos: n.at}
		}
		return normalize(v), nil

	case *attrNode:
		target, err := e.eval(n.target)
		if err != nil {
			return nil, err
		}
		m, ok := target.(map[string]any)
		if !ok {
			return nil, evalErrorf(n.at, "%s has no attribute %q", typeName(target), n.name)
		}
		v, ok := m[n.name]
		if !ok {
			return nil, evalErrorf(n.at, "dict has no attribute %q", n.name)
		}
		return normalize(v), nil

	case *indexNode:
		target, err := e.eval(n.target)
		if err != nil {
			return nil, err
		}
		idx, err := e.eval(n.index)
		if err != nil {
			return nil, err
		}
		return subscript(target, idx, n.at)

	case *callNode:
		fn := builtins[n.fn.(*nameNode).name]
		args := make([]any, len(n.args))
		for i, arg := range n.args {
			v, err := e.eval(arg)
			if err != nil {
				return nil, err
			}
			args[i] = v
		}
		return fn(n.at, args)

	case *unaryNode:
		v, err := e.eval(n.operand)
		if err != nil {
			return nil, err
		}
		return unary(n.op, v, n.at)

	case *binaryNode:
		l, err := e.eval(n.left)
		if err != nil {
			return nil, err
		}
		r, err := e.eval(n.right)
		if err != nil {
			return nil, err
		}
		return arith(n.op, l, r, n.at)

	case *boolNode:
		l, err := e.eval(n.left)
		if err != nil {
			return nil, err
		}
		if (n.op == "and") != Truthy(l) {
			return l, nil
		}
		return e.eval(n.right)

	case *compareNode:
		left, err := e.eval(n.first)
		if err != nil {
			return nil, err
		}
		for i, op := range n.ops {
			right, err := e.eval(n.rest[i])
			if err != nil {
				return nil, err
			}
			ok, err := compare(op, left, right, n.at)
			if err != nil {
				return nil, err
			}
			if !ok {
				return false, nil
			}
			left = right
		}
		return true, nil

	case *listNode:
		items := make([]any, len(n.items))
		for i, item := range n.items {
			v, err := e.eval(item)
			if err != nil {
				return nil, err
			}
			items[i] = v
		}
		return items, nil

	case *dictNode:
		out := make(map[string]any, len(n.keys))
		for i := range n.keys {
			k, err := e.eval(n.keys[i])
			if err != nil {
				return nil, err
			}
			key, ok := k.(string)
			if !ok {
				return nil, evalErrorf(n.keys[i].pos(), "dict keys must be str, not %s", typeName(k))
			}
			v, err := e.eval(n.values[i])
			if err != nil {
				return nil, err
			}
			out[key] = v
		}
		return out, nil

	case *condNode:
		cond, err := e.eval(n.cond)
		if err != nil {
			return nil, err
		}
		if Truthy(cond) {
			return e.eval(n.then)
		}
		return e.eval(n.els)
	}
	return nil, evalErrorf(n.pos(), "unsupported expression")
}

func subscript(target, idx any, pos int) (any, error) {
	switch t := target.(type) {
	case []any:
		i, ok := idx.(int64)
		if !ok {
			return nil, evalErrorf(pos, "list indices must be int, not %s", typeName(idx))
		}
		if i < 0 {
			i += int64(len(t))
		}
		if i < 0 || i >= int64(len(t)) {
			return nil, evalErrorf(pos, "list index out of range")
		}
		return normalize(t[i]), nil
	case string:
		i, ok := idx.(int64)
		if !ok {
			return nil, evalErrorf(pos, "string indices must be int, not %s", typeName(idx))
		}
		runes := []rune(t)
		if i < 0 {
			i += int64(len(runes))
		}
		if i < 0 || i >= int64(len(runes)) {
			return nil, evalErrorf(pos, "string index out of range")
		}
		return string(runes[i]), nil
	case map[string]any:
		k, ok := idx.(string)
		if !ok {
			return nil, evalErrorf(pos, "dict keys must be str, not %s", typeName(idx))
		}
		v, ok := t[k]
		if !ok {
			return nil, evalErrorf(pos, "key %q not found", k)
		}
		return normalize(v), nil
	}
	return nil, evalErrorf(pos, "%s is not subscriptable", typeName(target))
}

func unary(op string, v any, pos int) (any, error) {
	if op == "not" {
		return !Truthy(v), nil
	}
	i, f, isInt, ok := numeric(v)
	if !ok {
		return nil, evalErrorf(pos, "bad operand type for unary %s: %s", op, typeName(v))
	}
	if op == "+" {
		if isInt {
			return i, nil
		}
		return f, nil
	}
	if isInt {
		if i == math.MinInt64 {
			return nil, evalErrorf(pos, "integer overflow")
		}
		return -i, nil
	}
	return -f, nil
}

func compare(op string, l, r any, pos int) (bool, error) {
	switch op {
	case "==":
		return equal(l, r), nil
	case "!=":
		return !equal(l, r), nil
	case "is":
		return typeName(l) == typeName(r) && equal(l, r), nil
	case "is not":
		return !(typeName(l) == typeName(r) && equal(l, r)), nil
	case "in":
		return contains(r, l, pos)
	case "not in":
		found, err := contains(r, l, pos)
		return !found, err
	}
	c, err := order(l, r, op, pos)
	if err != nil {
		return false, err
	}
	switch op {
	case "<":
		return c < 0, nil
	case "<=":
		return c <= 0, nil
	case ">":
		return c > 0, nil
	case ">=":
		return c >= 0, nil
	}
	return false, evalErrorf(pos, "unknown comparison %s", op)
}

func arith(op string, l, r any, pos int) (any, error) {
	switch op {
	case "+":
		if ls, ok := l.(string); ok {
			if rs, ok := r.(string); ok {
				if len(ls)+len(rs) > maxSequenceLen {
					return nil, evalErrorf(pos, "string longer than %d", maxSequenceLen)
				}
				return ls + rs, nil
			}
		}
		if ll, ok := l.([]any); ok {
			if rl, ok := r.([]any); ok {
				if len(ll)+len(rl) > maxSequenceLen {
					return nil, evalErrorf(pos, "list longer than %d", maxSequenceLen)
				}
				out := make([]any, 0, len(ll)+len(rl))
				return append(append(out, ll...), rl...), nil
			}
		}
	case "*":
		if v, ok, err := repeat(l, r, pos); ok {
			return v, err
		}
		if v, ok, err := repeat(r, l, pos); ok {
			return v, err
		}
	}

	li, lf, lInt, lok := numeric(l)
	ri, rf, rInt, rok := numeric(r)
	if !lok || !rok {
		return nil, evalErrorf(pos, "unsupported operand types for %s: %s and %s", op, typeName(l), typeName(r))
	}
	bothInt := lInt && rInt

	switch op {
	case "+":
		if bothInt {
			if (ri > 0 && li > math.MaxInt64-ri) || (ri < 0 && li < math.MinInt64-ri) {
				return nil, evalErrorf(pos, "integer overflow")
			}
			return li + ri, nil
		}
		return lf + rf, nil
	case "-":
		if bothInt {
			if (ri < 0 && li > math.MaxInt64+ri) || (ri > 0 && li < math.MinInt64+ri) {
				return nil, evalErrorf(pos, "integer overflow")
			}
			return li - ri, nil
		}
		return lf - rf, nil
	case "*":
		if bothInt {
			if li != 0 && ri != 0 {
				p := li * ri
				if p/ri != li || (li == -1 && ri == math.MinInt64) || (ri == -1 && li == math.MinInt64) {
					return nil, evalErrorf(pos, "integer overflow")
				}
				return p, nil
			}
			return int64(0), nil
		}
		return lf * rf, nil
	case "/":
		if rf == 0 {
			return nil, evalErrorf(pos, "division by zero")
		}
		return lf / rf, nil
	case "//":
		if rf == 0 {
			return nil, evalErrorf(pos, "integer division or modulo by zero")
		}
		if bothInt {
			q := li / ri
			if (li%ri != 0) && ((li < 0) != (ri < 0)) {
				q--
			}
			return q, nil
		}
		return math.Floor(lf / rf), nil
	case "%":
		if rf == 0 {
			return nil, evalErrorf(pos, "integer division or modulo by zero")
		}
		if bothInt {
			m := li % ri
			if m != 0 && ((m < 0) != (ri < 0)) {
				m += ri
			}
			return m, nil
		}
		m := math.Mod(lf, rf)
		if m != 0 && ((m < 0) != (rf < 0)) {
			m += rf
		}
		return m, nil
	case "**":
		if bothInt && ri >= 0 {
			return intPow(li, ri, pos)
		}
		res := math.Pow(lf, rf)
		if math.IsNaN(res) {
			return nil, evalErrorf(pos, "math domain error")
		}
		if math.IsInf(res, 0) {
			return nil, evalErrorf(pos, "numerical result out of range")
		}
		return res, nil
	}
	return nil, evalErrorf(pos, "unknown operator %s", op)
}

func intPow(base, exp int64, pos int) (any, error) {
	result := int64(1)
	for exp > 0 {
		if exp&1 == 1 {
			next := result * base
			if base != 0 && next/base != result {
				return nil, evalErrorf(pos, "integer overflow")
			}
			result = next
		}
		exp >>= 1
		if exp > 0 {
			sq := base * base
			if base != 0 && sq/base != base {
				return nil, evalErrorf(pos, "integer overflow")
			}
			base = sq
		}
	}
	return result, nil
}

// repeat handles str * int and list * int. ok is false when the operands do
// not form a repetition.
func repeat(seq, count any, pos int) (any, bool, error) {
	n, isInt := count.(int64)
	if !isInt {
		return nil, false, nil
	}
	if n < 0 {
		n = 0
	}
	switch s := seq.(type) {
	case string:
		if len(s) > 0 && n > maxSequenceLen/int64(len(s)) {
			return nil, true, evalErrorf(pos, "string longer than %d", maxSequenceLen)
		}
		return strings.Repeat(s, int(n)), true, nil
	case []any:
		if len(s) > 0 && n > maxSequenceLen/int64(len(s)) {
			return nil, true, evalErrorf(pos, "list longer than %d", maxSequenceLen)
		}
		out := make([]any, 0, len(s)*int(n))
		for i := int64(0); i < n; i++ {
			out = append(out, s...)
		}
		return out, true, nil
	}
	return nil, false, nil
}
