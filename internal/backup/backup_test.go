package backup

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/clinic/internal/clinic"
	"github.com/roach88/clinic/internal/store"
	"github.com/roach88/clinic/internal/testutil"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "clinic.db"), store.WithLogger(quietLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func newCodec(st *store.Store) *Codec {
	return NewCodec(st,
		WithClock(testutil.FrozenClock(testutil.Epoch).Now),
		WithLogger(quietLogger()),
	)
}

// sampleDocument is the fixture behind testdata/golden/export.golden.
func sampleDocument() *Document {
	return &Document{
		Meta: Meta{App: DefaultAppName, ExportedAt: "2024-06-01T09:00:00.000Z", Version: 2},
		Patients: []store.Record{{
			"id": "p1", "name": "José Silva", "phone": "555-0100", "dob": "1980-02-29",
			"doc": "123.456.789-00", "createdAt": "2024-05-01T10:00:00.000Z",
		}},
		Appointments: []store.Record{{
			"id": "a1", "date": "2024-06-01", "time": "09:00", "patientId": "p1",
			"status": clinic.StatusConfirmed, "note": "<first> visit & intake",
			"createdAt": "2024-05-20T08:30:00.000Z",
		}},
		Records: []store.Record{{
			"id": "r1", "patientId": "p1", "date": "2024-06-01",
			"S": "Headache", "O": "BP 120/80", "A": "Tension", "P": "Rest",
			"createdAt": "2024-06-01T09:45:00.000Z",
		}},
		Settings: []store.Record{{"key": clinic.SettingProfessionalName, "value": "Dr. Ana"}},
	}
}

func TestExport_Golden(t *testing.T) {
	st := openStore(t)
	codec := newCodec(st)
	ctx := context.Background()

	require.NoError(t, codec.Import(ctx, sampleDocument()))

	doc, err := codec.Export(ctx)
	require.NoError(t, err)
	data, err := Encode(doc)
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "export", data)
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := openStore(t)
	repo := clinic.NewRepository(src,
		clinic.WithGenerator(testutil.NewSequenceGenerator("id")),
		clinic.WithClock(testutil.NewDeterministicClock(testutil.Epoch, time.Minute).Now),
	)

	_, err := repo.SeedDemo(ctx)
	require.NoError(t, err)
	p := clinic.Patient{Name: "Bruno", Phone: "555-0101"}
	require.NoError(t, repo.SavePatient(ctx, &p))
	r := clinic.ClinicalRecord{PatientID: p.ID, Subjective: "cough", Plan: "fluids"}
	require.NoError(t, repo.SaveRecord(ctx, &r))
	require.NoError(t, repo.SetSetting(ctx, clinic.SettingProfessionalInfo, "CRM 1234 / SP"))

	exported, err := newCodec(src).Export(ctx)
	require.NoError(t, err)
	data, err := Encode(exported)
	require.NoError(t, err)

	dst := openStore(t)
	require.NoError(t, newCodec(dst).ImportBytes(ctx, data))

	restored, err := newCodec(dst).Export(ctx)
	require.NoError(t, err)
	if diff := cmp.Diff(exported, restored); diff != "" {
		t.Errorf("restored document mismatch (-exported +restored):\n%s", diff)
	}

	again, err := Encode(restored)
	require.NoError(t, err)
	assert.Equal(t, string(data), string(again), "encoding is deterministic")
}

func TestRoundTrip_RawRecords(t *testing.T) {
	ctx := context.Background()
	src := openStore(t)

	raw := map[string][]string{
		clinic.Patients: {
			`{"id":"p1","name":"Ana"}`,
			`{"id":"p2","name":"Bruno","allergy":"penicillin","weight":72.5,"tags":["vip"]}`,
			`{"id":"jose\u0301","name":"Jose\u0301"}`,
		},
		clinic.Appointments: {`{"id":"a1","createdAt":1717232400000}`},
		clinic.Records:      {`{"id":"r1","S":{"pain":7},"extra":null}`},
		clinic.Settings:     {`{"key":"theme","value":true}`},
	}
	for collection, docs := range raw {
		for _, d := range docs {
			rec, err := store.ParseRecord([]byte(d))
			require.NoError(t, err)
			require.NoError(t, src.PutRecord(ctx, collection, rec))
		}
	}

	exported, err := newCodec(src).Export(ctx)
	require.NoError(t, err)
	data, err := Encode(exported)
	require.NoError(t, err)

	dst := openStore(t)
	require.NoError(t, newCodec(dst).ImportBytes(ctx, data))

	for collection := range raw {
		want, err := src.GetAllRecords(ctx, collection)
		require.NoError(t, err)
		got, err := dst.GetAllRecords(ctx, collection)
		require.NoError(t, err)
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("%s mismatch (-source +restored):\n%s", collection, diff)
		}
	}

	p2, ok, err := dst.GetRecord(ctx, clinic.Patients, "p2")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "penicillin", p2["allergy"])
	assert.Equal(t, json.Number("72.5"), p2["weight"])
	_, hasPhone := p2["phone"]
	assert.False(t, hasPhone, "absent fields stay absent")
}

func TestExport_NonStringFields(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	codec := newCodec(st)

	require.NoError(t, st.PutRecord(ctx, clinic.Appointments, store.Record{"id": "a1", "createdAt": json.Number("1717232400000")}))
	require.NoError(t, st.PutRecord(ctx, clinic.Patients, store.Record{"id": "p1", "name": json.Number("5")}))

	doc, err := codec.Export(ctx)
	require.NoError(t, err)
	require.Len(t, doc.Appointments, 1)
	assert.Equal(t, json.Number("1717232400000"), doc.Appointments[0]["createdAt"])

	data, err := Encode(doc)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"createdAt": 1717232400000`)
	assert.Contains(t, string(data), `"name": 5`)
}

func TestImport_ReplacesExistingData(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	codec := newCodec(st)

	require.NoError(t, st.PutRecord(ctx, clinic.Patients, store.Record{"id": "old", "name": "Old"}))
	require.NoError(t, st.PutRecord(ctx, clinic.Settings, store.Record{"key": "theme", "value": "dark"}))

	require.NoError(t, codec.Import(ctx, sampleDocument()))

	doc, err := codec.Export(ctx)
	require.NoError(t, err)
	require.Len(t, doc.Patients, 1)
	assert.Equal(t, "p1", doc.Patients[0]["id"])
	require.Len(t, doc.Settings, 1)
	assert.Equal(t, "profName", doc.Settings[0]["key"])
}

func TestImport_MissingArraysClearCollections(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	codec := newCodec(st)
	require.NoError(t, codec.Import(ctx, sampleDocument()))

	require.NoError(t, codec.ImportBytes(ctx, []byte(`{"patients": [{"id": "p9", "name": "Nina"}], "records": null}`)))

	doc, err := codec.Export(ctx)
	require.NoError(t, err)
	assert.Len(t, doc.Patients, 1)
	assert.Empty(t, doc.Appointments)
	assert.Empty(t, doc.Records)
	assert.Empty(t, doc.Settings)
}

func TestImport_MistypedFieldsAccepted(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	codec := newCodec(st)

	require.NoError(t, codec.ImportBytes(ctx, []byte(`{"patients": [{"id": "p1", "name": 5}]}`)))

	rec, ok, err := st.GetRecord(ctx, clinic.Patients, "p1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, store.Record{"id": "p1", "name": json.Number("5")}, rec)
}

func TestImport_DanglingReferencesAccepted(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	codec := newCodec(st)

	doc := sampleDocument()
	doc.Patients = nil
	require.NoError(t, codec.Import(ctx, doc))

	repo := clinic.NewRepository(st)
	agenda, err := repo.Agenda(ctx, "2024-06-01")
	require.NoError(t, err)
	require.Len(t, agenda, 1)
	assert.Equal(t, clinic.RemovedPatient, agenda[0].PatientName)
}

func TestImportBytes_InvalidLeavesDatabaseUntouched(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	codec := newCodec(st)
	require.NoError(t, codec.Import(ctx, sampleDocument()))
	before, err := codec.Export(ctx)
	require.NoError(t, err)

	inputs := map[string]string{
		"not json":          `not json`,
		"wrong array type":  `{"patients": "p1"}`,
		"record without id": `{"patients": [{"name": "No Id"}]}`,
		"setting no key":    `{"settings": [{"value": "x"}]}`,
	}
	for name, in := range inputs {
		t.Run(name, func(t *testing.T) {
			err := codec.ImportBytes(ctx, []byte(in))
			require.Error(t, err)
			assert.True(t, IsInvalidFormat(err), "got %v", err)

			after, err := codec.Export(ctx)
			require.NoError(t, err)
			if diff := cmp.Diff(before, after); diff != "" {
				t.Errorf("database changed (-before +after):\n%s", diff)
			}
		})
	}
}

func TestImport_StoreFailureIsNotFormatError(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	codec := newCodec(st)
	require.NoError(t, st.Close())

	err := codec.Import(ctx, sampleDocument())
	require.Error(t, err)
	assert.False(t, IsInvalidFormat(err))
	assert.True(t, store.IsWriteFailed(err), "got %v", err)
}

func TestExport_MetaAndEmptyDatabase(t *testing.T) {
	st := openStore(t)
	codec := NewCodec(st,
		WithAppName("Consultório"),
		WithClock(testutil.FrozenClock(testutil.Epoch).Now),
		WithLogger(quietLogger()),
	)

	doc, err := codec.Export(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Meta{App: "Consultório", ExportedAt: "2024-06-01T09:00:00.000Z", Version: 2}, doc.Meta)
	assert.NotNil(t, doc.Patients)
	assert.NotNil(t, doc.Appointments)
	assert.NotNil(t, doc.Records)
	assert.NotNil(t, doc.Settings)
}

func TestExportPatients(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	codec := newCodec(st)
	require.NoError(t, codec.Import(ctx, sampleDocument()))

	exp, err := codec.ExportPatients(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2024-06-01T09:00:00.000Z", exp.ExportedAt)
	require.Len(t, exp.Patients, 1)

	data, err := EncodePatients(exp)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"exportedAt": "2024-06-01T09:00:00.000Z"`)
	assert.NotContains(t, string(data), `"appointments"`)

	path := filepath.Join(t.TempDir(), "patients.json")
	require.NoError(t, WritePatientsFile(path, exp))
	written, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, data, written)
}

func TestFiles(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	codec := newCodec(st)
	require.NoError(t, codec.Import(ctx, sampleDocument()))

	path := filepath.Join(t.TempDir(), FileName(testutil.Epoch))
	written, err := codec.ExportFile(ctx, path)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	read, err := ReadFile(path)
	require.NoError(t, err)
	if diff := cmp.Diff(written, read); diff != "" {
		t.Errorf("file round trip mismatch (-written +read):\n%s", diff)
	}

	dst := openStore(t)
	require.NoError(t, newCodec(dst).ImportFile(ctx, path))
	patients, err := dst.GetAllRecords(ctx, clinic.Patients)
	require.NoError(t, err)
	assert.Len(t, patients, 1)

	_, err = ReadFile(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.False(t, IsInvalidFormat(err))
}

func TestWriteFile_OverwritesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backup.json")
	require.NoError(t, os.WriteFile(path, []byte("stale"), 0o644))

	require.NoError(t, WriteFile(path, sampleDocument()))

	doc, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "p1", doc.Patients[0]["id"])
}

func TestFileName(t *testing.T) {
	day := time.Date(2024, time.February, 9, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, "clinic-backup-2024-02-09.json", FileName(day))
}
