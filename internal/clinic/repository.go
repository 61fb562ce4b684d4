package clinic

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/clinic/internal/ident"
	"github.com/roach88/clinic/internal/store"
)

// Timestamp is the layout of CreatedAt fields: ISO-8601 in UTC with milliseconds.
const Timestamp = "2006-01-02T15:04:05.000Z07:00"

// DateLayout is the layout of appointment and record dates.
const DateLayout = "2006-01-02"

// TimeLayout is the layout of appointment times.
const TimeLayout = "15:04"

var (
	// ErrNameRequired is returned when saving a patient without a name.
	ErrNameRequired = errors.New("patient name is required")

	// ErrInvalidDate is returned for a date not in YYYY-MM-DD form.
	ErrInvalidDate = errors.New("date must be YYYY-MM-DD")

	// ErrInvalidTime is returned for a time not in HH:MM form.
	ErrInvalidTime = errors.New("time must be HH:MM")

	// ErrKeyRequired is returned when saving a setting without a key.
	ErrKeyRequired = errors.New("setting key is required")
)

// Storage is the collection store surface the repository needs.
type Storage interface {
	PutRecord(ctx context.Context, collection string, rec store.Record) error
	GetRecord(ctx context.Context, collection, key string) (store.Record, bool, error)
	GetAllRecords(ctx context.Context, collection string) ([]store.Record, error)
	GetByIndex(ctx context.Context, collection, index, value string) ([]store.Record, error)
	DeleteRecord(ctx context.Context, collection, key string) error
	ClearCollection(ctx context.Context, collection string) error
	Collections() []string
}

// Repository is a typed view over the collection store. It holds no cache:
// every call reads or writes the store directly.
type Repository struct {
	st  Storage
	ids ident.Generator
	now func() time.Time
}

// Option configures a Repository.
type Option func(*Repository)

// WithGenerator sets the identifier generator for new records.
func WithGenerator(g ident.Generator) Option {
	return func(r *Repository) { r.ids = g }
}

// WithClock sets the time source for CreatedAt stamps and "today".
func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

// NewRepository returns a repository over st.
func NewRepository(st Storage, opts ...Option) *Repository {
	r := &Repository{
		st:  st,
		ids: ident.UUIDv7Generator{},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Repository) stamp() string {
	return r.now().UTC().Format(Timestamp)
}

// Today returns the current date in DateLayout, in local time.
func (r *Repository) Today() string {
	return r.now().Format(DateLayout)
}

// fill assigns an identifier and creation time to a new record.
func (r *Repository) fill(id, createdAt *string) {
	if *id == "" {
		*id = r.ids.Generate()
	}
	if *createdAt == "" {
		*createdAt = r.stamp()
	}
}

// Patients

// SavePatient inserts or fully replaces p. A new patient (empty ID) gets a
// fresh identifier and CreatedAt; both are written back into p. The name is
// trimmed and NFC normalized so name lookups match however it was typed.
func (r *Repository) SavePatient(ctx context.Context, p *Patient) error {
	p.Name = norm.NFC.String(strings.TrimSpace(p.Name))
	if p.Name == "" {
		return ErrNameRequired
	}
	r.fill(&p.ID, &p.CreatedAt)
	return put(ctx, r.st, Patients, p)
}

// Patient returns the patient with the given id.
func (r *Repository) Patient(ctx context.Context, id string) (Patient, bool, error) {
	return get[Patient](ctx, r.st, Patients, id)
}

// Patients returns every patient, ordered by id.
func (r *Repository) Patients(ctx context.Context) ([]Patient, error) {
	return all[Patient](ctx, r.st, Patients)
}

// PatientsNamed returns the patients whose name is exactly name, compared in
// NFC form.
func (r *Repository) PatientsNamed(ctx context.Context, name string) ([]Patient, error) {
	return byIndex[Patient](ctx, r.st, Patients, "by_name", norm.NFC.String(name))
}

// DeletePatient removes a patient. Appointments and clinical records that
// reference the patient are kept.
func (r *Repository) DeletePatient(ctx context.Context, id string) error {
	return r.st.DeleteRecord(ctx, Patients, id)
}

// ClearPatients removes every patient. Appointments and records are kept.
func (r *Repository) ClearPatients(ctx context.Context) error {
	return r.st.ClearCollection(ctx, Patients)
}

// Appointments

// SaveAppointment inserts or fully replaces a. Status defaults to StatusConfirmed.
func (r *Repository) SaveAppointment(ctx context.Context, a *Appointment) error {
	if _, err := time.Parse(DateLayout, a.Date); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidDate, a.Date)
	}
	if _, err := time.Parse(TimeLayout, a.Time); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidTime, a.Time)
	}
	if a.Status == "" {
		a.Status = StatusConfirmed
	}
	r.fill(&a.ID, &a.CreatedAt)
	return put(ctx, r.st, Appointments, a)
}

// Appointments returns every appointment, ordered by id.
func (r *Repository) Appointments(ctx context.Context) ([]Appointment, error) {
	return all[Appointment](ctx, r.st, Appointments)
}

// AppointmentsOn returns the appointments on date, ordered by time.
func (r *Repository) AppointmentsOn(ctx context.Context, date string) ([]Appointment, error) {
	appts, err := byIndex[Appointment](ctx, r.st, Appointments, "by_date", date)
	if err != nil {
		return nil, err
	}
	SortAppointments(appts)
	return appts, nil
}

// AppointmentsFor returns the appointments that reference patientID.
func (r *Repository) AppointmentsFor(ctx context.Context, patientID string) ([]Appointment, error) {
	return byIndex[Appointment](ctx, r.st, Appointments, "by_patient", patientID)
}

// DeleteAppointment removes an appointment.
func (r *Repository) DeleteAppointment(ctx context.Context, id string) error {
	return r.st.DeleteRecord(ctx, Appointments, id)
}

// Clinical records

// SaveRecord inserts or fully replaces a SOAP note. Date defaults to today.
func (r *Repository) SaveRecord(ctx context.Context, rec *ClinicalRecord) error {
	if rec.Date == "" {
		rec.Date = r.Today()
	}
	if _, err := time.Parse(DateLayout, rec.Date); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidDate, rec.Date)
	}
	r.fill(&rec.ID, &rec.CreatedAt)
	return put(ctx, r.st, Records, rec)
}

// Records returns every clinical record, ordered by id.
func (r *Repository) Records(ctx context.Context) ([]ClinicalRecord, error) {
	return all[ClinicalRecord](ctx, r.st, Records)
}

// RecordsFor returns a patient's clinical records, newest date first.
func (r *Repository) RecordsFor(ctx context.Context, patientID string) ([]ClinicalRecord, error) {
	recs, err := byIndex[ClinicalRecord](ctx, r.st, Records, "by_patient", patientID)
	if err != nil {
		return nil, err
	}
	SortRecords(recs)
	return recs, nil
}

// DeleteRecord removes a clinical record.
func (r *Repository) DeleteRecord(ctx context.Context, id string) error {
	return r.st.DeleteRecord(ctx, Records, id)
}

// Settings

// SetSetting stores value under key.
func (r *Repository) SetSetting(ctx context.Context, key, value string) error {
	if key == "" {
		return ErrKeyRequired
	}
	return put(ctx, r.st, Settings, Setting{Key: key, Value: value})
}

// Setting returns the value stored under key.
func (r *Repository) Setting(ctx context.Context, key string) (string, bool, error) {
	s, ok, err := get[Setting](ctx, r.st, Settings, key)
	return s.Value, ok, err
}

// Settings returns every setting, ordered by key.
func (r *Repository) Settings(ctx context.Context) ([]Setting, error) {
	return all[Setting](ctx, r.st, Settings)
}

// WipeAll clears every collection. It is the last-resort reset offered when
// the database is unusable.
func (r *Repository) WipeAll(ctx context.Context) error {
	for _, name := range r.st.Collections() {
		if err := r.st.ClearCollection(ctx, name); err != nil {
			return fmt.Errorf("wipe: %w", err)
		}
	}
	return nil
}

func put(ctx context.Context, st Storage, collection string, v any) error {
	rec, err := store.RecordFrom(v)
	if err != nil {
		return err
	}
	return st.PutRecord(ctx, collection, rec)
}

func get[T any](ctx context.Context, st Storage, collection, key string) (T, bool, error) {
	var out T
	rec, ok, err := st.GetRecord(ctx, collection, key)
	if err != nil || !ok {
		return out, false, err
	}
	if err := rec.Decode(&out); err != nil {
		return out, false, fmt.Errorf("%s %s: %w", collection, key, err)
	}
	return out, true, nil
}

func all[T any](ctx context.Context, st Storage, collection string) ([]T, error) {
	recs, err := st.GetAllRecords(ctx, collection)
	if err != nil {
		return nil, err
	}
	return decodeAll[T](collection, recs)
}

func byIndex[T any](ctx context.Context, st Storage, collection, index, value string) ([]T, error) {
	recs, err := st.GetByIndex(ctx, collection, index, value)
	if err != nil {
		return nil, err
	}
	return decodeAll[T](collection, recs)
}

func decodeAll[T any](collection string, recs []store.Record) ([]T, error) {
	out := make([]T, 0, len(recs))
	for i, rec := range recs {
		var v T
		if err := rec.Decode(&v); err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", collection, i, err)
		}
		out = append(out, v)
	}
	return out, nil
}
