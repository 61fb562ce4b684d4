// Package catalog declares the versioned set of record collections.
//
// The catalogue lives in schema.cue and is compiled with the CUE Go API at
// startup. Each collection and each secondary index carries the schema version
// that introduced it, which is what lets the store upgrade an older database
// by adding only what is missing.
package catalog

import (
	_ "embed"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

//go:embed schema.cue
var schemaCUE string

// Index is a secondary lookup on one top-level field of a collection's records.
type Index struct {
	Name  string `json:"name"`
	Field string `json:"field"`
	Since int    `json:"since"`
}

// Collection is a named set of records keyed by a single field.
type Collection struct {
	Name    string  `json:"name"`
	Key     string  `json:"key"`
	Since   int     `json:"since"`
	Indexes []Index `json:"indexes"`
}

// Index returns the named index, or false if the collection has none by that name.
func (c Collection) Index(name string) (Index, bool) {
	for _, idx := range c.Indexes {
		if idx.Name == name {
			return idx, true
		}
	}
	return Index{}, false
}

// Catalog is the full schema at one version.
type Catalog struct {
	Version     int          `json:"version"`
	Collections []Collection `json:"collections"`
}

// Error reports an invalid catalogue.
type Error struct {
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: catalog: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Message)
	}
	return "catalog: " + e.Message
}

var (
	defaultOnce sync.Once
	defaultCat  *Catalog
	defaultErr  error
)

// Load compiles the embedded catalogue.
func Load() (*Catalog, error) {
	defaultOnce.Do(func() {
		defaultCat, defaultErr = Compile("schema.cue", schemaCUE)
	})
	if defaultErr != nil {
		return nil, defaultErr
	}
	return defaultCat.clone(), nil
}

// Default returns the embedded catalogue. It panics if the embedded file is
// invalid, which can only happen through a bad edit to schema.cue.
func Default() *Catalog {
	c, err := Load()
	if err != nil {
		panic(err)
	}
	return c
}

// Compile parses and validates a catalogue written in CUE.
func Compile(filename, src string) (*Catalog, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	var c Catalog
	if err := v.Decode(&c); err != nil {
		return nil, formatCUEError(err)
	}
	if err := c.check(); err != nil {
		return nil, err
	}
	return &c, nil
}

// check enforces the rules CUE cannot express on its own.
func (c *Catalog) check() error {
	seen := make(map[string]bool, len(c.Collections))
	for _, col := range c.Collections {
		if seen[col.Name] {
			return &Error{Message: fmt.Sprintf("duplicate collection %q", col.Name)}
		}
		seen[col.Name] = true

		if col.Since > c.Version {
			return &Error{Message: fmt.Sprintf("collection %q introduced at version %d, beyond catalog version %d", col.Name, col.Since, c.Version)}
		}

		idxSeen := make(map[string]bool, len(col.Indexes))
		for _, idx := range col.Indexes {
			if idxSeen[idx.Name] {
				return &Error{Message: fmt.Sprintf("duplicate index %q on %q", idx.Name, col.Name)}
			}
			idxSeen[idx.Name] = true
			if idx.Since < col.Since || idx.Since > c.Version {
				return &Error{Message: fmt.Sprintf("index %s.%s has version %d outside [%d, %d]", col.Name, idx.Name, idx.Since, col.Since, c.Version)}
			}
		}
	}
	return nil
}

// Lookup returns the named collection.
func (c *Catalog) Lookup(name string) (Collection, bool) {
	for _, col := range c.Collections {
		if col.Name == name {
			return col, true
		}
	}
	return Collection{}, false
}

// Names returns collection names in declaration order.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.Collections))
	for i, col := range c.Collections {
		names[i] = col.Name
	}
	return names
}

// AtVersion returns the catalogue as it stood at version v: only collections
// and indexes introduced at or before v.
func (c *Catalog) AtVersion(v int) *Catalog {
	out := &Catalog{Version: v}
	for _, col := range c.Collections {
		if col.Since > v {
			continue
		}
		kept := col
		kept.Indexes = nil
		for _, idx := range col.Indexes {
			if idx.Since <= v {
				kept.Indexes = append(kept.Indexes, idx)
			}
		}
		out.Collections = append(out.Collections, kept)
	}
	return out
}

// Change is one structural addition needed to move a database forward.
type Change struct {
	Collection Collection
	// Index is nil when the change creates the collection itself.
	Index *Index
}

// Added lists the collections and indexes introduced after version from,
// in declaration order, collections before their indexes.
func (c *Catalog) Added(from int) []Change {
	var changes []Change
	for _, col := range c.Collections {
		if col.Since > from {
			changes = append(changes, Change{Collection: col})
		}
		for i := range col.Indexes {
			if col.Indexes[i].Since > from {
				idx := col.Indexes[i]
				changes = append(changes, Change{Collection: col, Index: &idx})
			}
		}
	}
	return changes
}

func (c *Catalog) clone() *Catalog {
	out := &Catalog{Version: c.Version, Collections: make([]Collection, len(c.Collections))}
	for i, col := range c.Collections {
		out.Collections[i] = col
		out.Collections[i].Indexes = append([]Index(nil), col.Indexes...)
	}
	return out
}

// formatCUEError keeps the first CUE error and its source position.
func formatCUEError(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &Error{Message: err.Error()}
	}
	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &Error{Message: first.Error(), Pos: positions[0]}
	}
	return &Error{Message: first.Error()}
}
