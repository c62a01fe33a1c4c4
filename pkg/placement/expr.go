package placement

import "fmt"

// expr is the AST for the placement expression grammar: numbers, strings,
// member-access identifiers (tags.zone), unary/binary arithmetic, boolean
// and comparison operators. There is no call syntax.
type expr interface {
	eval(vars map[string]any) (any, error)
}

type numberLit float64

func (n numberLit) eval(map[string]any) (any, error) { return float64(n), nil }

type stringLit string

func (s stringLit) eval(map[string]any) (any, error) { return string(s), nil }

// ident resolves a dotted path (e.g. "tags.zone") against the variable
// map, where each intermediate segment must itself be a map[string]any.
type ident []string

func (id ident) eval(vars map[string]any) (any, error) {
	var cur any = vars
	for i, seg := range id {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("placement: %s is not a member-accessible value", joinPath(id[:i]))
		}
		v, ok := m[seg]
		if !ok {
			return nil, nil // unknown symbol evaluates to nil, not an error
		}
		cur = v
	}
	return cur, nil
}

func joinPath(segs []string) string {
	out := ""
	for i, s := range segs {
		if i > 0 {
			out += "."
		}
		out += s
	}
	return out
}

type unaryExpr struct {
	op   tokenKind // tokNot or tokMinus
	expr expr
}

func (u unaryExpr) eval(vars map[string]any) (any, error) {
	v, err := u.expr.eval(vars)
	if err != nil {
		return nil, err
	}
	switch u.op {
	case tokNot:
		return !truthy(v), nil
	case tokMinus:
		n, err := toNumber(v)
		if err != nil {
			return nil, err
		}
		return -n, nil
	}
	return nil, fmt.Errorf("placement: unknown unary operator")
}

type binaryExpr struct {
	op          tokenKind
	left, right expr
}

func (b binaryExpr) eval(vars map[string]any) (any, error) {
	// Short-circuit && and ||.
	if b.op == tokAnd || b.op == tokOr {
		l, err := b.left.eval(vars)
		if err != nil {
			return nil, err
		}
		lt := truthy(l)
		if b.op == tokAnd && !lt {
			return false, nil
		}
		if b.op == tokOr && lt {
			return true, nil
		}
		r, err := b.right.eval(vars)
		if err != nil {
			return nil, err
		}
		return truthy(r), nil
	}

	l, err := b.left.eval(vars)
	if err != nil {
		return nil, err
	}
	r, err := b.right.eval(vars)
	if err != nil {
		return nil, err
	}

	switch b.op {
	case tokEq:
		return looseEqual(l, r), nil
	case tokNeq:
		return !looseEqual(l, r), nil
	case tokPlus, tokMinus, tokStar, tokSlash, tokLt, tokGt, tokLe, tokGe:
		ln, err := toNumber(l)
		if err != nil {
			return nil, err
		}
		rn, err := toNumber(r)
		if err != nil {
			return nil, err
		}
		switch b.op {
		case tokPlus:
			return ln + rn, nil
		case tokMinus:
			return ln - rn, nil
		case tokStar:
			return ln * rn, nil
		case tokSlash:
			if rn == 0 {
				return nil, fmt.Errorf("placement: division by zero")
			}
			return ln / rn, nil
		case tokLt:
			return ln < rn, nil
		case tokGt:
			return ln > rn, nil
		case tokLe:
			return ln <= rn, nil
		case tokGe:
			return ln >= rn, nil
		}
	}
	return nil, fmt.Errorf("placement: unknown binary operator")
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	default:
		return true
	}
}

func toNumber(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case bool:
		if t {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("placement: value %v is not numeric", v)
	}
}

func looseEqual(a, b any) bool {
	an, aerr := toNumber(a)
	bn, berr := toNumber(b)
	if aerr == nil && berr == nil {
		return an == bn
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return as == bs
	}
	return a == b
}
