package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/clinic/internal/backup"
)

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	Output       string
	PatientsOnly bool
}

// BackupSummary reports what an export or import moved.
type BackupSummary struct {
	Path         string `json:"path,omitempty"`
	Patients     int    `json:"patients"`
	Appointments int    `json:"appointments"`
	Records      int    `json:"records"`
	Settings     int    `json:"settings"`
}

func summarize(path string, doc *backup.Document) BackupSummary {
	return BackupSummary{
		Path:         path,
		Patients:     len(doc.Patients),
		Appointments: len(doc.Appointments),
		Records:      len(doc.Records),
		Settings:     len(doc.Settings),
	}
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a backup of the whole database",
		Long: `Write every collection to one JSON backup document.

Without --output the document is written to stdout. If --output names a
directory, the file is named clinic-backup-YYYY-MM-DD.json inside it.

Example:
  clinic export -o ./backups
  clinic export --patients-only -o patients.json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file or directory")
	cmd.Flags().BoolVar(&opts.PatientsOnly, "patients-only", false, "export the patient registry only (not restorable)")

	return cmd
}

func runExport(opts *ExportOptions, cmd *cobra.Command) error {
	s, err := opts.open(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	path := opts.Output
	if info, statErr := os.Stat(path); path != "" && statErr == nil && info.IsDir() {
		path = filepath.Join(path, backup.FileName(opts.now()))
	}

	if opts.PatientsOnly {
		return exportPatients(s, cmd, path)
	}

	doc, err := s.codec.Export(cmd.Context())
	if err != nil {
		return s.out.Fail("export failed", err)
	}

	if path == "" {
		data, err := backup.Encode(doc)
		if err != nil {
			return s.out.Fail("export failed", err)
		}
		_, err = s.out.Writer.Write(data)
		return err
	}

	if err := backup.WriteFile(path, doc); err != nil {
		return s.out.Fail("export failed", err)
	}

	summary := summarize(path, doc)
	if s.out.Format == "json" {
		return s.out.Success(summary)
	}
	fmt.Fprintf(s.out.Writer, "✓ Exported %d patient(s), %d appointment(s), %d record(s), %d setting(s) to %s\n",
		summary.Patients, summary.Appointments, summary.Records, summary.Settings, path)
	return nil
}

func exportPatients(s *session, cmd *cobra.Command, path string) error {
	exp, err := s.codec.ExportPatients(cmd.Context())
	if err != nil {
		return s.out.Fail("export failed", err)
	}

	if path == "" {
		data, err := backup.EncodePatients(exp)
		if err != nil {
			return s.out.Fail("export failed", err)
		}
		_, err = s.out.Writer.Write(data)
		return err
	}

	if err := backup.WritePatientsFile(path, exp); err != nil {
		return s.out.Fail("export failed", err)
	}
	if s.out.Format == "json" {
		return s.out.Success(BackupSummary{Path: path, Patients: len(exp.Patients)})
	}
	fmt.Fprintf(s.out.Writer, "✓ Exported %d patient(s) to %s\n", len(exp.Patients), path)
	return nil
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := rootOpts

	cmd := &cobra.Command{
		Use:   "import <backup-file|->",
		Short: "Replace the whole database with a backup",
		Long: `Replace every collection with the contents of a backup document.

This is destructive: records not in the backup are lost. The replacement is
all-or-nothing; an unreadable backup leaves the database as it was.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(opts, cmd, args[0])
		},
	}

	return cmd
}

func runImport(opts *RootOptions, cmd *cobra.Command, source string) error {
	out := opts.formatter(cmd)

	var data []byte
	var err error
	if source == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(source)
	}
	if err != nil {
		_ = out.Error(ErrCodeInvalidArgument, err.Error())
		return WrapExitError(ExitCommandError, "failed to read backup", err)
	}

	doc, err := backup.Decode(data)
	if err != nil {
		return out.Fail("import failed", err)
	}

	s, err := opts.open(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.codec.Import(cmd.Context(), doc); err != nil {
		return s.out.Fail("import failed", err)
	}

	summary := summarize(source, doc)
	if out.Format == "json" {
		return out.Success(summary)
	}
	fmt.Fprintf(out.Writer, "✓ Imported %d patient(s), %d appointment(s), %d record(s), %d setting(s)\n",
		summary.Patients, summary.Appointments, summary.Records, summary.Settings)
	return nil
}
