package clinic

import (
	"cmp"
	"context"
	"slices"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// AgendaEntry is an appointment with its patient reference resolved.
type AgendaEntry struct {
	Appointment
	PatientName string `json:"patientName"`
}

// ResolvePatientName returns the name of the patient with the given id, or
// RemovedPatient when no such patient is in patients.
func ResolvePatientName(patients []Patient, id string) string {
	for _, p := range patients {
		if p.ID == id {
			return p.Name
		}
	}
	return RemovedPatient
}

// Agenda returns the appointments on date, ordered by time, each labelled with
// its patient's name. Appointments for deleted patients are kept and labelled
// RemovedPatient.
func (r *Repository) Agenda(ctx context.Context, date string) ([]AgendaEntry, error) {
	appts, err := r.AppointmentsOn(ctx, date)
	if err != nil {
		return nil, err
	}
	patients, err := r.Patients(ctx)
	if err != nil {
		return nil, err
	}

	entries := make([]AgendaEntry, 0, len(appts))
	for _, a := range appts {
		entries = append(entries, AgendaEntry{
			Appointment: a,
			PatientName: ResolvePatientName(patients, a.PatientID),
		})
	}
	return entries, nil
}

// SortPatients orders patients by name using Portuguese collation, so accented
// names sort next to their unaccented forms. Ties fall back to id.
func SortPatients(patients []Patient) {
	col := collate.New(language.BrazilianPortuguese, collate.IgnoreCase)
	slices.SortStableFunc(patients, func(a, b Patient) int {
		if c := col.CompareString(a.Name, b.Name); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

// SortAppointments orders appointments by date, then time.
func SortAppointments(appts []Appointment) {
	slices.SortStableFunc(appts, func(a, b Appointment) int {
		return cmp.Or(
			cmp.Compare(a.Date, b.Date),
			cmp.Compare(a.Time, b.Time),
			cmp.Compare(a.ID, b.ID),
		)
	})
}

// SortRecords orders clinical records newest date first.
func SortRecords(recs []ClinicalRecord) {
	slices.SortStableFunc(recs, func(a, b ClinicalRecord) int {
		return cmp.Or(
			cmp.Compare(b.Date, a.Date),
			cmp.Compare(b.CreatedAt, a.CreatedAt),
		)
	})
}

// Demo data written by SeedDemo.
const (
	DemoPatientName = "Demo Patient"
	DemoPatientDoc  = "DEMO-0001"
	DemoTime        = "09:00"
	DemoNote        = "First visit"
)

// SeedDemo writes one demo patient and a confirmed appointment for today when
// the registry is empty. It reports whether anything was written.
func (r *Repository) SeedDemo(ctx context.Context) (bool, error) {
	patients, err := r.Patients(ctx)
	if err != nil {
		return false, err
	}
	if len(patients) > 0 {
		return false, nil
	}

	p := Patient{Name: DemoPatientName, Doc: DemoPatientDoc}
	if err := r.SavePatient(ctx, &p); err != nil {
		return false, err
	}
	a := Appointment{
		Date:      r.Today(),
		Time:      DemoTime,
		PatientID: p.ID,
		Status:    StatusConfirmed,
		Note:      DemoNote,
	}
	if err := r.SaveAppointment(ctx, &a); err != nil {
		return false, err
	}
	return true, nil
}
