package backup

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/clinic/internal/canon"
	"github.com/roach88/clinic/internal/clinic"
	"github.com/roach88/clinic/internal/store"
)

// Document is a whole-database backup. Collections hold records exactly as
// stored: fields are not checked against the clinic types, so whatever was
// written comes back on restore.
type Document struct {
	Meta         Meta           `json:"meta"`
	Patients     []store.Record `json:"patients"`
	Appointments []store.Record `json:"appointments"`
	Records      []store.Record `json:"records"`
	Settings     []store.Record `json:"settings"`
}

// Meta describes where and when a backup was taken.
type Meta struct {
	App        string `json:"app"`
	ExportedAt string `json:"exportedAt"`
	Version    int    `json:"version"`
}

// PatientExport is the patient-only export. It is not a restorable backup.
type PatientExport struct {
	ExportedAt string         `json:"exportedAt"`
	Patients   []store.Record `json:"patients"`
}

// Decode parses a backup document.
//
// Missing or null collection arrays decode as empty. Top-level keys the
// document does not know are dropped; record fields are kept whatever their
// type. A collection that is not an array, or an element that is not an
// object, is a *FormatError.
func Decode(data []byte) (*Document, error) {
	var top map[string]json.RawMessage
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&top); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, invalid("", fmt.Errorf("top level must be an object, got %s", typeErr.Value))
		}
		return nil, invalid("", err)
	}
	if top == nil {
		return nil, invalid("", errors.New("top level must be an object, got null"))
	}
	if dec.More() {
		return nil, invalid("", errors.New("trailing data after document"))
	}

	doc := &Document{}
	if raw, ok := present(top, "meta"); ok {
		if !isObject(raw) {
			return nil, invalid("meta", errors.New("must be an object"))
		}
		if err := json.Unmarshal(raw, &doc.Meta); err != nil {
			return nil, invalid("meta", err)
		}
	}

	var err error
	if doc.Patients, err = decodeArray(top, clinic.Patients); err != nil {
		return nil, err
	}
	if doc.Appointments, err = decodeArray(top, clinic.Appointments); err != nil {
		return nil, err
	}
	if doc.Records, err = decodeArray(top, clinic.Records); err != nil {
		return nil, err
	}
	if doc.Settings, err = decodeArray(top, clinic.Settings); err != nil {
		return nil, err
	}
	return doc, nil
}

// Encode renders doc as canonical JSON: keys sorted, two-space indent, and a
// trailing newline. Equal documents always encode to identical bytes.
func Encode(doc *Document) ([]byte, error) {
	out := *doc
	out.Patients = nonNil(out.Patients)
	out.Appointments = nonNil(out.Appointments)
	out.Records = nonNil(out.Records)
	out.Settings = nonNil(out.Settings)
	return encode(out)
}

// EncodePatients renders a patient-only export the same way Encode does.
func EncodePatients(exp *PatientExport) ([]byte, error) {
	out := *exp
	out.Patients = nonNil(out.Patients)
	return encode(out)
}

func encode(v any) ([]byte, error) {
	compact, err := canon.Normalize(v)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, compact, "", "  "); err != nil {
		return nil, fmt.Errorf("indent: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// present returns the raw value under key unless it is absent or null.
func present(top map[string]json.RawMessage, key string) (json.RawMessage, bool) {
	raw, ok := top[key]
	if !ok {
		return nil, false
	}
	raw = bytes.TrimSpace(raw)
	if bytes.Equal(raw, []byte("null")) {
		return nil, false
	}
	return raw, true
}

func decodeArray(top map[string]json.RawMessage, key string) ([]store.Record, error) {
	out := []store.Record{}
	raw, ok := present(top, key)
	if !ok {
		return out, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, invalid(key, errors.New("must be an array"))
	}
	for i, item := range items {
		field := fmt.Sprintf("%s[%d]", key, i)
		if !isObject(item) {
			return nil, invalid(field, errors.New("must be an object"))
		}
		rec, err := store.ParseRecord(item)
		if err != nil {
			return nil, invalid(field, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func isObject(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
