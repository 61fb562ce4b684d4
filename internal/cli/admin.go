package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/clinic/internal/catalog"
)

// DatabaseInfo describes an opened database.
type DatabaseInfo struct {
	Database      string               `json:"database"`
	SchemaVersion int                  `json:"schema_version"`
	Collections   []catalog.Collection `json:"collections"`
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := rootOpts

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create or upgrade the database",
		Long: `Create the database if it does not exist, or bring an existing one up to
the current schema version. Existing records are never modified.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			info, err := describe(s, cmd)
			if err != nil {
				return s.out.Fail("failed to read schema version", err)
			}
			if s.out.Format == "json" {
				return s.out.Success(info)
			}
			fmt.Fprintf(s.out.Writer, "✓ %s ready at schema version %d\n", info.Database, info.SchemaVersion)
			return nil
		},
	}

	return cmd
}

// NewSchemaCommand creates the schema command.
func NewSchemaCommand(rootOpts *RootOptions) *cobra.Command {
	opts := rootOpts

	cmd := &cobra.Command{
		Use:           "schema",
		Short:         "Show collections, keys and indexes",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			info, err := describe(s, cmd)
			if err != nil {
				return s.out.Fail("failed to read schema version", err)
			}
			if s.out.Format == "json" {
				return s.out.Success(info)
			}

			w := s.out.Writer
			fmt.Fprintf(w, "Schema version %d (%s)\n\n", info.SchemaVersion, info.Database)
			for _, col := range info.Collections {
				fmt.Fprintf(w, "  %s: key %s, since v%d\n", col.Name, col.Key, col.Since)
				for _, idx := range col.Indexes {
					fmt.Fprintf(w, "    %s on %s, since v%d\n", idx.Name, idx.Field, idx.Since)
				}
			}
			return nil
		},
	}

	return cmd
}

func describe(s *session, cmd *cobra.Command) (*DatabaseInfo, error) {
	version, err := s.store.SchemaVersion(cmd.Context())
	if err != nil {
		return nil, err
	}
	return &DatabaseInfo{
		Database:      s.cfg.Database,
		SchemaVersion: version,
		Collections:   s.store.Catalog().Collections,
	}, nil
}

// WipeOptions holds flags for the wipe command.
type WipeOptions struct {
	*RootOptions
	Yes bool
}

// NewWipeCommand creates the wipe command.
func NewWipeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WipeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "wipe",
		Short: "Delete every record in every collection",
		Long: `Delete every record in every collection. The schema is kept.

This is the last resort when the data is unusable. Export a backup first.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := opts.formatter(cmd)
			if !opts.Yes {
				msg := "refusing to wipe without --yes"
				_ = out.Error(ErrCodeInvalidArgument, msg)
				return NewExitError(ExitCommandError, msg)
			}

			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.repo.WipeAll(cmd.Context()); err != nil {
				return s.out.Fail("wipe failed", err)
			}
			s.logger.Warn("database wiped", "path", s.cfg.Database)

			if out.Format == "json" {
				return out.Success(map[string]any{"wiped": s.store.Collections()})
			}
			fmt.Fprintf(out.Writer, "Wiped %s\n", strings.Join(s.store.Collections(), ", "))
			return nil
		},
	}

	cmd.Flags().BoolVar(&opts.Yes, "yes", false, "confirm deleting all data")

	return cmd
}

// NewIDOptions holds flags for the newid command.
type NewIDOptions struct {
	*RootOptions
	Count int
}

// NewNewIDCommand creates the newid command.
func NewNewIDCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &NewIDOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "newid",
		Short:         "Print new record identifiers",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := opts.formatter(cmd)
			if opts.Count < 1 {
				msg := fmt.Sprintf("count must be at least 1, got %d", opts.Count)
				_ = out.Error(ErrCodeInvalidArgument, msg)
				return NewExitError(ExitCommandError, msg)
			}

			gen := opts.ids()
			ids := make([]string, opts.Count)
			for i := range ids {
				ids[i] = gen.Generate()
			}

			if out.Format == "json" {
				return out.Success(ids)
			}
			for _, id := range ids {
				fmt.Fprintln(out.Writer, id)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&opts.Count, "count", "n", 1, "number of identifiers")

	return cmd
}

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	opts := rootOpts

	cmd := &cobra.Command{
		Use:           "seed",
		Short:         "Add a demo patient and appointment to an empty registry",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			seeded, err := s.repo.SeedDemo(cmd.Context())
			if err != nil {
				return s.out.Fail("seed failed", err)
			}

			if s.out.Format == "json" {
				return s.out.Success(map[string]bool{"seeded": seeded})
			}
			if seeded {
				fmt.Fprintln(s.out.Writer, "Seeded demo patient and appointment")
			} else {
				fmt.Fprintln(s.out.Writer, "Registry not empty, nothing seeded")
			}
			return nil
		},
	}

	return cmd
}
