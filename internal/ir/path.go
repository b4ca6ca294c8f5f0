package ir

import (
	"math"
	"strconv"
	"strings"
)

// Lookup resolves a dotted path such as "metadata.LENGTH" against obj.
// Numeric segments index into arrays ("mds.0.frames").
// Returns false when any segment is missing or traverses a scalar.
func Lookup(obj IRObject, path string) (IRValue, bool) {
	if path == "" {
		return nil, false
	}

	var cur IRValue = obj
	for _, seg := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case IRObject:
			next, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = next
		case IRArray:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			cur = node[idx]
		default:
			return nil, false
		}
	}
	return cur, true
}

// AsNumber coerces v into a finite float64.
// Numbers and numeric strings coerce; everything else, including null,
// booleans and strings that do not parse, reports false.
func AsNumber(v IRValue) (float64, bool) {
	var f float64
	switch val := v.(type) {
	case IRInt:
		f = float64(val)
	case IRFloat:
		f = float64(val)
	case IRString:
		s := strings.TrimSpace(string(val))
		if s == "" {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// AsArray returns v as an IRArray when it is one.
func AsArray(v IRValue) (IRArray, bool) {
	arr, ok := v.(IRArray)
	return arr, ok
}

// IsNull reports whether v is a JSON null (or an absent Go nil).
func IsNull(v IRValue) bool {
	switch v.(type) {
	case nil, IRNull:
		return true
	}
	return false
}

// Equal reports whether a and b are the same JSON value.
// IRInt and IRFloat compare numerically; object key order never matters.
func Equal(a, b IRValue) bool {
	if IsNull(a) || IsNull(b) {
		return IsNull(a) && IsNull(b)
	}

	switch av := a.(type) {
	case IRInt, IRFloat:
		x, _ := AsNumber(a)
		switch b.(type) {
		case IRInt, IRFloat:
			y, _ := AsNumber(b)
			return x == y
		}
		return false
	case IRString:
		bv, ok := b.(IRString)
		return ok && av == bv
	case IRBool:
		bv, ok := b.(IRBool)
		return ok && av == bv
	case IRArray:
		bv, ok := b.(IRArray)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case IRObject:
		bv, ok := b.(IRObject)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			other, ok := bv[k]
			if !ok || !Equal(v, other) {
				return false
			}
		}
		return true
	}
	return false
}
