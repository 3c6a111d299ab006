package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/genmerge/internal/ir"
)

// marshalDoc converts a model snapshot to canonical JSON TEXT for storage.
// The returned hash is computed over the same bytes.
func marshalDoc(doc ir.ElementDoc) (text, hash string, err error) {
	data, err := ir.MarshalCanonical(doc)
	if err != nil {
		return "", "", fmt.Errorf("marshal snapshot: %w", err)
	}
	hash, err = ir.SnapshotHash(doc)
	if err != nil {
		return "", "", err
	}
	return string(data), hash, nil
}

// marshalRequest converts a request document to canonical JSON TEXT.
func marshalRequest(req ir.RequestDoc) (string, error) {
	data, err := ir.MarshalCanonical(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	return string(data), nil
}

// unmarshalDoc parses canonical JSON TEXT to a snapshot.
// ir.Attrs decodes integers via json.Number, so large values survive.
func unmarshalDoc(data string) (ir.ElementDoc, error) {
	var doc ir.ElementDoc
	if err := json.Unmarshal([]byte(data), &doc); err != nil {
		return ir.ElementDoc{}, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return doc, nil
}

func unmarshalRequest(data string) (ir.RequestDoc, error) {
	var req ir.RequestDoc
	if err := json.Unmarshal([]byte(data), &req); err != nil {
		return ir.RequestDoc{}, fmt.Errorf("unmarshal request: %w", err)
	}
	return req, nil
}
