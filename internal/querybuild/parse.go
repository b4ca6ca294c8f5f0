// Package querybuild turns client query fragments into a single filter tree.
package querybuild

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/mdstats/internal/ir"
	"github.com/roach88/mdstats/internal/queryir"
)

// ParseError reports a fragment that is not a well-formed filter document.
// The message names the fragment verbatim so clients can find it.
type ParseError struct {
	Fragment string
	Err      error
}

func (e *ParseError) Error() string {
	return "Wrong query syntax: " + e.Fragment
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// member is one key of a JSON object, in document order.
type member struct {
	key string
	raw json.RawMessage
}

// ParseFragment parses one fragment into a tree.
//
// A fragment is a JSON object. "$and" and "$or" take a non-empty array of
// non-empty objects; any other "$" key is rejected. Every other key is a
// field predicate. An object with several keys becomes an And of its
// entries in document order. The empty object parses to nil, meaning no
// constraint.
func ParseFragment(fragment string) (queryir.Node, error) {
	node, err := parseDocument([]byte(fragment), true)
	if err != nil {
		return nil, &ParseError{Fragment: fragment, Err: err}
	}
	return node, nil
}

func parseDocument(data []byte, allowEmpty bool) (queryir.Node, error) {
	members, err := readObject(data)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		if allowEmpty {
			return nil, nil
		}
		return nil, errors.New("empty filter object")
	}

	nodes := make([]queryir.Node, 0, len(members))
	for _, m := range members {
		n, err := parseMember(m)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	if len(nodes) == 1 {
		return nodes[0], nil
	}
	return queryir.And{Children: nodes}, nil
}

func parseMember(m member) (queryir.Node, error) {
	switch {
	case m.key == "$and" || m.key == "$or":
		children, err := parseClauses(m.key, m.raw)
		if err != nil {
			return nil, err
		}
		if m.key == "$and" {
			return queryir.And{Children: children}, nil
		}
		return queryir.Or{Children: children}, nil
	case strings.HasPrefix(m.key, "$"):
		return nil, fmt.Errorf("unsupported top-level operator %q", m.key)
	case m.key == "":
		return nil, errors.New("empty field name")
	case slices.Contains(strings.Split(m.key, "."), ""):
		return nil, fmt.Errorf("empty segment in field name %q", m.key)
	}

	value, err := ir.UnmarshalIRValue(m.raw)
	if err != nil {
		return nil, fmt.Errorf("field %q: %w", m.key, err)
	}
	return queryir.Leaf{Field: norm.NFC.String(m.key), Predicate: value, Source: m.raw}, nil
}

func parseClauses(op string, raw json.RawMessage) ([]queryir.Node, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, fmt.Errorf("%s must be an array of filter objects", op)
	}
	if len(elems) == 0 {
		return nil, fmt.Errorf("%s must not be empty", op)
	}

	children := make([]queryir.Node, 0, len(elems))
	for i, e := range elems {
		n, err := parseDocument(e, false)
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", op, i, err)
		}
		children = append(children, n)
	}
	return children, nil
}

// readObject decodes exactly one JSON object, keeping member order.
// Duplicate keys and trailing data are errors.
func readObject(data []byte) ([]member, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, errors.New("filter must be a JSON object")
	}

	var members []member
	seen := make(map[string]bool)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, errors.New("object key must be a string")
		}
		if seen[key] {
			return nil, fmt.Errorf("duplicate key %q", key)
		}
		seen[key] = true

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, err
		}
		members = append(members, member{key: key, raw: raw})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after filter object")
	}
	return members, nil
}
