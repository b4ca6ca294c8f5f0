package store

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/mdstats/internal/ir"
)

// ReadDocuments decodes either a single JSON array of objects or
// newline-delimited JSON objects; the first non-space byte decides which.
// Empty input yields no documents.
func ReadDocuments(r io.Reader) ([]ir.IRObject, error) {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(br)
	dec.UseNumber()

	var docs []ir.IRObject
	if first == '[' {
		var raw []json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, err
		}
		if dec.More() {
			return nil, errors.New("unexpected data after JSON array")
		}
		for i, msg := range raw {
			doc, err := decodeDocument(msg)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			docs = append(docs, doc)
		}
		return docs, nil
	}

	for i := 0; ; i++ {
		var msg json.RawMessage
		if err := dec.Decode(&msg); errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return nil, fmt.Errorf("document %d: %w", i, err)
		}
		doc, err := decodeDocument(msg)
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", i, err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func decodeDocument(msg json.RawMessage) (ir.IRObject, error) {
	v, err := ir.UnmarshalIRValue(bytes.TrimSpace(msg))
	if err != nil {
		return nil, err
	}
	obj, ok := v.(ir.IRObject)
	if !ok {
		return nil, fmt.Errorf("expected object, got %s", ir.TypeName(v))
	}
	return obj, nil
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return b, br.UnreadByte()
	}
}
