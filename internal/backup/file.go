package backup

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/natefinch/atomic"
)

const filePerms = 0o600

// FileName returns the conventional backup file name for a backup taken on
// t's calendar day, e.g. "clinic-backup-2024-06-01.json".
func FileName(t time.Time) string {
	return "clinic-backup-" + t.Format("2006-01-02") + ".json"
}

// WriteFile encodes doc and writes it to path atomically. A crash mid-write
// leaves any previous file at path intact.
func WriteFile(path string, doc *Document) error {
	data, err := Encode(doc)
	if err != nil {
		return err
	}
	return writeAtomic(path, data)
}

// WritePatientsFile writes a patient-only export to path atomically.
func WritePatientsFile(path string, exp *PatientExport) error {
	data, err := EncodePatients(exp)
	if err != nil {
		return err
	}
	return writeAtomic(path, data)
}

func writeAtomic(path string, data []byte) error {
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write backup: %w", err)
	}

	// atomic.WriteFile doesn't set permissions for new files.
	if err := os.Chmod(path, filePerms); err != nil {
		return fmt.Errorf("set backup permissions: %w", err)
	}
	return nil
}
