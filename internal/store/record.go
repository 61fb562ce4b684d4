package store

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/roach88/clinic/internal/canon"
)

// Record is one stored document. Values are the generic JSON types produced
// by decoding with json.Number: string, bool, json.Number, []any,
// map[string]any and nil.
type Record map[string]any

// RecordFrom converts any JSON-marshalable value (usually a domain struct)
// into a Record. The value must encode as a JSON object.
func RecordFrom(v any) (Record, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("record from %T: %w", v, err)
	}
	return parseRecord(raw)
}

// Decode fills v (a pointer, usually to a domain struct) from the record.
// Fields v does not declare are ignored.
func (r Record) Decode(v any) error {
	raw, err := json.Marshal(map[string]any(r))
	if err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	return nil
}

// Key returns the string value of field, or false if it is absent, empty or
// not a valid UTF-8 string. The stored document carries the key byte for
// byte, so the row key always matches the field read back.
func (r Record) Key(field string) (string, bool) {
	s, ok := r[field].(string)
	if !ok || s == "" || !utf8.ValidString(s) {
		return "", false
	}
	return s, true
}

// ParseRecord decodes a JSON object into a Record. Numbers are kept as
// json.Number.
func ParseRecord(data []byte) (Record, error) {
	return parseRecord(data)
}

func parseRecord(data []byte) (Record, error) {
	v, err := canon.DecodeGeneric(data)
	if err != nil {
		return nil, fmt.Errorf("parse record: %w", err)
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("parse record: expected JSON object, got %T", v)
	}
	return Record(m), nil
}

// marshalRecord encodes r canonically. Values of any JSON-marshalable Go type
// are accepted; they are normalized through encoding/json first. Strings and
// number text are written unchanged.
func marshalRecord(r Record) (string, error) {
	data, err := canon.Normalize(map[string]any(r))
	if err != nil {
		return "", fmt.Errorf("marshal record: %w", err)
	}
	return string(data), nil
}
