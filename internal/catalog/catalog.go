// Package catalog resolves source tables to the records that back them.
package catalog

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

const (
	FormatJSON = "json"
)

var ErrTableNotFound = errors.New("table not found")

// Table is a catalog entry.
type Table struct {
	Database string
	Name     string
	Location string
	Format   string
}

// Catalog is a read-only set of tables keyed by database and name.
type Catalog struct {
	tables map[string]Table
}

func key(database, table string) string {
	return strings.ToLower(database) + "." + strings.ToLower(table)
}

// New builds a catalog, rejecting duplicate entries.
func New(tables ...Table) (*Catalog, error) {
	c := &Catalog{tables: make(map[string]Table, len(tables))}
	for _, t := range tables {
		if t.Format == "" {
			t.Format = FormatJSON
		}
		if t.Format != FormatJSON {
			return nil, fmt.Errorf("table %s.%s: unsupported format %q", t.Database, t.Name, t.Format)
		}
		k := key(t.Database, t.Name)
		if _, ok := c.tables[k]; ok {
			return nil, fmt.Errorf("duplicate catalog table %s.%s", t.Database, t.Name)
		}
		c.tables[k] = t
	}
	return c, nil
}

// Lookup returns the table registered under database and table.
func (c *Catalog) Lookup(database, table string) (Table, error) {
	t, ok := c.tables[key(database, table)]
	if !ok {
		return Table{}, fmt.Errorf("%w: %s.%s", ErrTableNotFound, database, table)
	}
	return t, nil
}

// Tables lists every entry ordered by database then name.
func (c *Catalog) Tables() []Table {
	out := make([]Table, 0, len(c.tables))
	for _, t := range c.tables {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		return key(out[i].Database, out[i].Name) < key(out[j].Database, out[j].Name)
	})
	return out
}
