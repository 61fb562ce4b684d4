// Package backup exports the whole database to one portable JSON document and
// restores it.
//
// A restore is destructive: every collection is cleared and refilled from the
// document. The replacement runs in a single storage transaction, so readers
// observe either the old database or the restored one.
package backup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/roach88/clinic/internal/catalog"
	"github.com/roach88/clinic/internal/clinic"
	"github.com/roach88/clinic/internal/store"
)

// DefaultAppName is written to meta.app unless WithAppName overrides it.
const DefaultAppName = "Clinic Agenda"

// Store is the storage surface the codec needs.
type Store interface {
	GetAllRecords(ctx context.Context, collection string) ([]store.Record, error)
	ReplaceAll(ctx context.Context, data map[string][]store.Record) error
	Catalog() *catalog.Catalog
}

// Codec exports and restores backups of one store.
type Codec struct {
	st      Store
	appName string
	now     func() time.Time
	logger  *slog.Logger
}

// Option configures a Codec.
type Option func(*Codec)

// WithAppName sets the application name recorded in meta.app.
func WithAppName(name string) Option {
	return func(c *Codec) { c.appName = name }
}

// WithClock sets the time source for meta.exportedAt.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) { c.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Codec) { c.logger = logger }
}

// NewCodec creates a codec over st.
func NewCodec(st Store, opts ...Option) *Codec {
	c := &Codec{
		st:      st,
		appName: DefaultAppName,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Export reads every collection and assembles a backup document. Each
// collection is read in its own transaction; a write that lands between two
// reads may or may not be reflected.
func (c *Codec) Export(ctx context.Context) (*Document, error) {
	doc := &Document{
		Meta: Meta{
			App:        c.appName,
			ExportedAt: c.now().UTC().Format(clinic.Timestamp),
			Version:    c.st.Catalog().Version,
		},
	}

	var err error
	if doc.Patients, err = c.st.GetAllRecords(ctx, clinic.Patients); err != nil {
		return nil, err
	}
	if doc.Appointments, err = c.st.GetAllRecords(ctx, clinic.Appointments); err != nil {
		return nil, err
	}
	if doc.Records, err = c.st.GetAllRecords(ctx, clinic.Records); err != nil {
		return nil, err
	}
	if doc.Settings, err = c.st.GetAllRecords(ctx, clinic.Settings); err != nil {
		return nil, err
	}

	c.logger.Info("backup exported",
		"patients", len(doc.Patients),
		"appointments", len(doc.Appointments),
		"records", len(doc.Records),
		"settings", len(doc.Settings),
	)
	return doc, nil
}

// ExportPatients returns the patient registry alone.
func (c *Codec) ExportPatients(ctx context.Context) (*PatientExport, error) {
	patients, err := c.st.GetAllRecords(ctx, clinic.Patients)
	if err != nil {
		return nil, err
	}
	return &PatientExport{
		ExportedAt: c.now().UTC().Format(clinic.Timestamp),
		Patients:   patients,
	}, nil
}

// Import replaces the whole database with the contents of doc. Every record
// is validated before anything is written; if one is rejected the database is
// left as it was.
//
// meta.version is recorded but not checked: documents from other schema
// versions import whatever collections this version knows, with every record
// field kept.
func (c *Codec) Import(ctx context.Context, doc *Document) error {
	data := map[string][]store.Record{
		clinic.Patients:     nonNil(doc.Patients),
		clinic.Appointments: nonNil(doc.Appointments),
		clinic.Records:      nonNil(doc.Records),
		clinic.Settings:     nonNil(doc.Settings),
	}

	if err := c.st.ReplaceAll(ctx, data); err != nil {
		// A record without a key is a defect in the document, not the store.
		if errors.Is(err, store.ErrMissingKey) {
			var se *store.Error
			if errors.As(err, &se) {
				return invalid(se.Collection, err)
			}
			return invalid("", err)
		}
		return err
	}

	c.logger.Info("backup imported",
		"app", doc.Meta.App,
		"exported_at", doc.Meta.ExportedAt,
		"version", doc.Meta.Version,
		"patients", len(doc.Patients),
		"appointments", len(doc.Appointments),
		"records", len(doc.Records),
		"settings", len(doc.Settings),
	)
	return nil
}

// ImportBytes decodes data and imports it. A *FormatError leaves the
// database untouched.
func (c *Codec) ImportBytes(ctx context.Context, data []byte) error {
	doc, err := Decode(data)
	if err != nil {
		return err
	}
	return c.Import(ctx, doc)
}

// ImportFile reads a backup file and imports it.
func (c *Codec) ImportFile(ctx context.Context, path string) error {
	doc, err := ReadFile(path)
	if err != nil {
		return err
	}
	return c.Import(ctx, doc)
}

// ExportFile exports the database to path and returns the document written.
func (c *Codec) ExportFile(ctx context.Context, path string) (*Document, error) {
	doc, err := c.Export(ctx)
	if err != nil {
		return nil, err
	}
	if err := WriteFile(path, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// ReadFile reads and decodes a backup file.
func ReadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read backup: %w", err)
	}
	return Decode(data)
}
