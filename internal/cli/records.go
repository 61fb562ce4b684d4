package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/clinic/internal/canon"
	"github.com/roach88/clinic/internal/store"
)

// PutOptions holds flags for the put command.
type PutOptions struct {
	*RootOptions
	NewID bool // assign a fresh identifier when the key field is absent
}

// NewPutCommand creates the put command.
func NewPutCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PutOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "put <collection> [record-json|-]",
		Short: "Insert or replace a record",
		Long: `Insert a record, or fully replace the record with the same key.

The record is a JSON object. Read from stdin when omitted or "-".

Example:
  clinic put patients '{"id":"p1","name":"Ana Souza"}'
  echo '{"name":"Bruno"}' | clinic put patients --new-id`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPut(opts, cmd, args)
		},
	}

	cmd.Flags().BoolVar(&opts.NewID, "new-id", false, "assign a new identifier if the key field is missing")

	return cmd
}

func runPut(opts *PutOptions, cmd *cobra.Command, args []string) error {
	collection := args[0]
	out := opts.formatter(cmd)

	var raw []byte
	if len(args) == 2 && args[1] != "-" {
		raw = []byte(args[1])
	} else {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return out.Fail("failed to read record", err)
		}
		raw = data
	}

	rec, err := store.ParseRecord(raw)
	if err != nil {
		_ = out.Error(ErrCodeInvalidArgument, err.Error())
		return WrapExitError(ExitCommandError, "invalid record", err)
	}

	s, err := opts.open(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	if col, ok := s.store.Catalog().Lookup(collection); ok {
		if _, has := rec.Key(col.Key); !has && opts.NewID {
			rec[col.Key] = opts.ids().Generate()
			s.logger.Debug("assigned key", "collection", collection, col.Key, rec[col.Key])
		}
	}

	if err := s.store.PutRecord(cmd.Context(), collection, rec); err != nil {
		return out.Fail("put failed", err)
	}

	if out.Format == "json" {
		return out.Success(rec)
	}
	return printRecord(out.Writer, rec)
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := rootOpts

	cmd := &cobra.Command{
		Use:           "get <collection> <key>",
		Short:         "Print one record",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(opts, cmd, args[0], args[1])
		},
	}

	return cmd
}

func runGet(opts *RootOptions, cmd *cobra.Command, collection, key string) error {
	s, err := opts.open(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	rec, ok, err := s.store.GetRecord(cmd.Context(), collection, key)
	if err != nil {
		return s.out.Fail("get failed", err)
	}
	if !ok {
		msg := fmt.Sprintf("no record %q in %s", key, collection)
		_ = s.out.Error(ErrCodeNotFound, msg)
		return NewExitError(ExitFailure, msg)
	}

	if s.out.Format == "json" {
		return s.out.Success(rec)
	}
	return printRecord(s.out.Writer, rec)
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := rootOpts

	cmd := &cobra.Command{
		Use:           "list <collection>",
		Short:         "Print every record in a collection, ordered by key",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			recs, err := s.store.GetAllRecords(cmd.Context(), args[0])
			if err != nil {
				return s.out.Fail("list failed", err)
			}
			return outputRecords(s.out, recs)
		},
	}

	return cmd
}

// NewFindCommand creates the find command.
func NewFindCommand(rootOpts *RootOptions) *cobra.Command {
	opts := rootOpts

	cmd := &cobra.Command{
		Use:   "find <collection> <index> <value>",
		Short: "Print records by secondary index",
		Long: `Print the records whose indexed field equals value.

Example:
  clinic find appointments by_date 2024-06-01
  clinic find records by_patient p1`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			recs, err := s.store.GetByIndex(cmd.Context(), args[0], args[1], args[2])
			if err != nil {
				return s.out.Fail("find failed", err)
			}
			return outputRecords(s.out, recs)
		},
	}

	return cmd
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	opts := rootOpts

	cmd := &cobra.Command{
		Use:   "delete <collection> <key>",
		Short: "Delete one record",
		Long: `Delete one record. Deleting a key that does not exist succeeds.

Deleting a patient leaves their appointments and clinical records in place.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.store.DeleteRecord(cmd.Context(), args[0], args[1]); err != nil {
				return s.out.Fail("delete failed", err)
			}
			if s.out.Format == "json" {
				return s.out.Success(map[string]string{"collection": args[0], "deleted": args[1]})
			}
			fmt.Fprintf(s.out.Writer, "Deleted %s/%s\n", args[0], args[1])
			return nil
		},
	}

	return cmd
}

// NewClearCommand creates the clear command.
func NewClearCommand(rootOpts *RootOptions) *cobra.Command {
	opts := rootOpts

	cmd := &cobra.Command{
		Use:           "clear <collection>",
		Short:         "Delete every record in a collection",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.store.ClearCollection(cmd.Context(), args[0]); err != nil {
				return s.out.Fail("clear failed", err)
			}
			if s.out.Format == "json" {
				return s.out.Success(map[string]string{"cleared": args[0]})
			}
			fmt.Fprintf(s.out.Writer, "Cleared %s\n", args[0])
			return nil
		},
	}

	return cmd
}

func outputRecords(out *OutputFormatter, recs []store.Record) error {
	if out.Format == "json" {
		return out.Success(recs)
	}
	for _, rec := range recs {
		if err := printRecord(out.Writer, rec); err != nil {
			return err
		}
	}
	return nil
}

// printRecord writes rec as one line of canonical JSON.
func printRecord(w io.Writer, rec store.Record) error {
	normalized, err := canon.Normalize(map[string]any(rec))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, strings.TrimSpace(string(normalized)))
	return err
}
