package cli

import (
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/clinic/internal/backup"
	"github.com/roach88/clinic/internal/clinic"
	"github.com/roach88/clinic/internal/config"
	"github.com/roach88/clinic/internal/ident"
	"github.com/roach88/clinic/internal/store"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	Database   string // overrides the config file's database
	ConfigPath string

	// Now and IDs override the clock and identifier generator (for testing).
	// If nil, time.Now and UUIDv7 identifiers are used.
	Now func() time.Time
	IDs ident.Generator
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the clinic CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clinic",
		Short: "Clinic - local clinic records",
		Long: `A local-first store for a small clinic: patients, appointments,
SOAP clinical records and practice settings in one SQLite file,
with whole-database backup and restore.`,
		SilenceErrors: true, // main prints errors that commands have not already reported
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Validate format flag
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to config file (default "+config.DefaultPath+" if present)")

	// Add subcommands
	cmd.AddCommand(NewInitCommand(opts))
	cmd.AddCommand(NewSchemaCommand(opts))
	cmd.AddCommand(NewPutCommand(opts))
	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewFindCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))
	cmd.AddCommand(NewClearCommand(opts))
	cmd.AddCommand(NewWipeCommand(opts))
	cmd.AddCommand(NewNewIDCommand(opts))
	cmd.AddCommand(NewSeedCommand(opts))
	cmd.AddCommand(NewAgendaCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewImportCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// session is everything a command needs: configuration, an open store, and
// the repository and backup codec over it.
type session struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *store.Store
	repo   *clinic.Repository
	codec  *backup.Codec
	out    *OutputFormatter
}

func (s *session) Close() {
	if err := s.store.Close(); err != nil {
		s.logger.Error("error closing database", "error", err)
	}
}

func (opts *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format: opts.Format,
		Writer: cmd.OutOrStdout(),
	}
}

func (opts *RootOptions) now() time.Time {
	if opts.Now != nil {
		return opts.Now()
	}
	return time.Now()
}

func (opts *RootOptions) ids() ident.Generator {
	if opts.IDs != nil {
		return opts.IDs
	}
	return ident.UUIDv7Generator{}
}

// open loads configuration and opens the database. Logs go to stderr at the
// configured level, or debug with --verbose.
func (opts *RootOptions) open(cmd *cobra.Command) (*session, error) {
	out := opts.formatter(cmd)

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		_ = out.Error(ErrCodeConfig, err.Error())
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.Database != "" {
		cfg.Database = opts.Database
	}

	level := cfg.Level()
	if opts.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	logger.Debug("opening database", "path", cfg.Database)
	st, err := store.Open(cfg.Database, store.WithLogger(logger))
	if err != nil {
		return nil, out.Fail("failed to open database", err)
	}

	s := &session{
		cfg:    cfg,
		logger: logger,
		store:  st,
		repo:   clinic.NewRepository(st, clinic.WithGenerator(opts.ids()), clinic.WithClock(opts.now)),
		codec: backup.NewCodec(st,
			backup.WithAppName(cfg.AppName),
			backup.WithClock(opts.now),
			backup.WithLogger(logger),
		),
		out: out,
	}

	if cfg.SeedDemo {
		seeded, err := s.repo.SeedDemo(cmd.Context())
		if err != nil {
			s.Close()
			return nil, out.Fail("failed to seed demo data", err)
		}
		if seeded {
			logger.Info("seeded demo data")
		}
	}
	return s, nil
}
