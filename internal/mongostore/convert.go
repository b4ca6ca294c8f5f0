package mongostore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/roach88/mdstats/internal/ir"
	"github.com/roach88/mdstats/internal/queryir"
)

// CompileFilter renders a query tree as a MongoDB filter document. A nil
// tree is the empty filter.
//
// Predicates parsed from client fragments keep the key order the client
// wrote, since MongoDB compares embedded documents field by field in
// order. Predicates built in code are emitted in canonical key order.
func CompileFilter(n queryir.Node) (bson.D, error) {
	switch node := n.(type) {
	case nil:
		return bson.D{}, nil
	case queryir.And:
		children, err := compileChildren(node.Children)
		if err != nil {
			return nil, err
		}
		return bson.D{{Key: "$and", Value: children}}, nil
	case queryir.Or:
		children, err := compileChildren(node.Children)
		if err != nil {
			return nil, err
		}
		return bson.D{{Key: "$or", Value: children}}, nil
	case queryir.Leaf:
		pred, err := compilePredicate(node)
		if err != nil {
			return nil, err
		}
		return bson.D{{Key: node.Field, Value: pred}}, nil
	default:
		return nil, &queryir.UnknownNodeError{Node: n}
	}
}

func compileChildren(children []queryir.Node) (bson.A, error) {
	out := make(bson.A, len(children))
	for i, c := range children {
		doc, err := CompileFilter(c)
		if err != nil {
			return nil, err
		}
		out[i] = doc
	}
	return out, nil
}

func compilePredicate(leaf queryir.Leaf) (any, error) {
	if len(leaf.Source) == 0 {
		return ToBSON(leaf.Predicate), nil
	}
	dec := json.NewDecoder(bytes.NewReader(leaf.Source))
	dec.UseNumber()
	v, err := decodeOrdered(dec)
	if err != nil {
		return nil, fmt.Errorf("predicate on %q: %w", leaf.Field, err)
	}
	return v, nil
}

// decodeOrdered reads one JSON value into BSON, objects as bson.D in
// document order. Numbers follow ir.DecodeNumber.
func decodeOrdered(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			doc := bson.D{}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, _ := keyTok.(string)
				val, err := decodeOrdered(dec)
				if err != nil {
					return nil, err
				}
				doc = append(doc, bson.E{Key: key, Value: val})
			}
			_, err := dec.Token()
			return doc, err
		case '[':
			arr := bson.A{}
			for dec.More() {
				val, err := decodeOrdered(dec)
				if err != nil {
					return nil, err
				}
				arr = append(arr, val)
			}
			_, err := dec.Token()
			return arr, err
		default:
			return nil, fmt.Errorf("unexpected %v", t)
		}
	case json.Number:
		n, err := ir.DecodeNumber(t)
		if err != nil {
			return nil, err
		}
		return ToBSON(n), nil
	case string:
		return t, nil
	case bool:
		return t, nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("unexpected token %v", tok)
	}
}

// ToBSON converts an IR value to its BSON counterpart.
func ToBSON(v ir.IRValue) any {
	switch val := v.(type) {
	case nil, ir.IRNull:
		return nil
	case ir.IRString:
		return string(val)
	case ir.IRInt:
		return int64(val)
	case ir.IRFloat:
		return float64(val)
	case ir.IRBool:
		return bool(val)
	case ir.IRArray:
		arr := make(bson.A, len(val))
		for i, elem := range val {
			arr[i] = ToBSON(elem)
		}
		return arr
	case ir.IRObject:
		return toDocument(val)
	default:
		panic(fmt.Sprintf("unknown IRValue type: %T", v))
	}
}

func toDocument(obj ir.IRObject) bson.D {
	doc := make(bson.D, 0, len(obj))
	for _, k := range obj.SortedKeys() {
		doc = append(doc, bson.E{Key: k, Value: ToBSON(obj[k])})
	}
	return doc
}

// FromBSON converts a decoded BSON value to IR. It never fails: a stored
// document always converts, whatever a writer put in it.
//
// ObjectIDs become their hex string and dates their RFC 3339 form, so
// identifiers read from MongoDB compare equal to the strings users type.
// Decimal128 values become floats. NaN and infinities become null, as do
// types with no JSON counterpart (binary, timestamps, min/max keys...).
// JavaScript code, symbols and regular expressions keep their text.
func FromBSON(v any) ir.IRValue {
	switch val := v.(type) {
	case nil:
		return ir.IRNull{}
	case string:
		return ir.IRString(val)
	case bool:
		return ir.IRBool(val)
	case int32:
		return ir.IRInt(int64(val))
	case int64:
		return ir.IRInt(val)
	case int:
		return ir.IRInt(int64(val))
	case float64:
		return finite(val)
	case bson.ObjectID:
		return ir.IRString(val.Hex())
	case bson.DateTime:
		return ir.IRString(val.Time().UTC().Format("2006-01-02T15:04:05.000Z07:00"))
	case bson.Decimal128:
		f, err := strconv.ParseFloat(val.String(), 64)
		if err != nil {
			return ir.IRNull{}
		}
		return finite(f)
	case bson.JavaScript:
		return ir.IRString(string(val))
	case bson.Symbol:
		return ir.IRString(string(val))
	case bson.Regex:
		return ir.IRString("/" + val.Pattern + "/" + val.Options)
	case bson.A:
		return fromSlice(val)
	case []any:
		return fromSlice(val)
	case bson.D:
		obj := make(ir.IRObject, len(val))
		for _, e := range val {
			obj[e.Key] = FromBSON(e.Value)
		}
		return obj
	case bson.M:
		obj := make(ir.IRObject, len(val))
		for k, raw := range val {
			obj[k] = FromBSON(raw)
		}
		return obj
	default:
		return ir.IRNull{}
	}
}

func finite(f float64) ir.IRValue {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return ir.IRNull{}
	}
	return ir.IRFloat(f)
}

func fromSlice(vals []any) ir.IRValue {
	arr := make(ir.IRArray, len(vals))
	for i, raw := range vals {
		arr[i] = FromBSON(raw)
	}
	return arr
}
