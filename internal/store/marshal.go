package store

import (
	"fmt"

	"github.com/roach88/rxdoc/internal/ir"
)

// marshalData converts a record to canonical JSON TEXT for storage.
// Canonical form keeps the stored text byte-identical for equal records.
func marshalData(data ir.Object) (string, error) {
	out, err := ir.MarshalCanonical(data)
	if err != nil {
		return "", fmt.Errorf("marshal data: %w", err)
	}
	return string(out), nil
}

// unmarshalData parses stored JSON TEXT back into a record.
// ir.ParseObject keeps integers above 2^53 exact.
func unmarshalData(text string) (ir.Object, error) {
	if text == "" {
		return ir.Object{}, nil
	}
	obj, err := ir.ParseObject([]byte(text))
	if err != nil {
		return nil, fmt.Errorf("unmarshal data: %w", err)
	}
	return obj, nil
}
