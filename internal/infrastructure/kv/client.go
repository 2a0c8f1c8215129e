// Package kv defines the key-value store client consumed by the repositories
// and the table metadata shared by every driver.
package kv

import (
	"context"
	"errors"
	"fmt"

	"github.com/avatarctic/identity-kv/internal/infrastructure/kv/codec"
)

var (
	// ErrItemNotFound is returned by Get when no item has the given key.
	ErrItemNotFound = errors.New("kv: item not found")
	// ErrConditionFailed is returned by PutIfAbsent when the key is taken.
	ErrConditionFailed = errors.New("kv: condition failed")
	// ErrUnknownTable is returned for a table the driver was not configured with.
	ErrUnknownTable = errors.New("kv: unknown table")
	// ErrUnknownIndex is returned for an index the table does not declare.
	ErrUnknownIndex = errors.New("kv: unknown index")
)

// Table describes one logical table: its name, its identity attribute and
// the secondary indexes keyed by index name with the attribute they cover.
type Table struct {
	Name    string
	Key     string
	Indexes map[string]string
}

// IndexAttr returns the attribute covered by index.
func (t Table) IndexAttr(index string) (string, bool) {
	attr, ok := t.Indexes[index]
	return attr, ok
}

type Op string

const (
	OpEq Op = "="
	OpLt Op = "<"
)

// Filter restricts a scan to items whose attribute satisfies Op against Value.
type Filter struct {
	Attr  string
	Op    Op
	Value codec.Value
}

// Match evaluates the filter against an item held in memory.
func (f *Filter) Match(item codec.Item) bool {
	if f == nil {
		return true
	}
	v, ok := item[f.Attr]
	if !ok {
		return false
	}
	c, ok := v.Compare(f.Value)
	if !ok {
		return false
	}
	switch f.Op {
	case OpEq:
		return c == 0
	case OpLt:
		return c < 0
	}
	return false
}

// QueryInput is an equality lookup on a secondary index.
type QueryInput struct {
	Table string
	Index string
	Value codec.Value
	Limit int
}

// ScanInput reads one page of a table. Cursor is the opaque continuation
// returned by the previous page; empty starts from the beginning.
type ScanInput struct {
	Table  string
	Limit  int
	Cursor string
	Filter *Filter
}

// ScanOutput holds one page. An empty Cursor means the scan is exhausted.
type ScanOutput struct {
	Items  []codec.Item
	Cursor string
}

// Client is the narrow store contract used by the repositories. Drivers
// return store faults unchanged and never retry.
type Client interface {
	// Get is a strongly consistent point lookup.
	Get(ctx context.Context, table string, key codec.Value) (codec.Item, error)
	Query(ctx context.Context, in QueryInput) ([]codec.Item, error)
	Scan(ctx context.Context, in ScanInput) (*ScanOutput, error)
	// PutIfAbsent inserts item unless an item with the same key exists.
	PutIfAbsent(ctx context.Context, table string, item codec.Item) error
	// Update sets the given attributes, creating the item when absent.
	Update(ctx context.Context, table string, key codec.Value, set codec.Item) error
	Delete(ctx context.Context, table string, key codec.Value) error
}

// Tables is the set of logical tables a driver serves, keyed by name.
type Tables map[string]Table

// NewTables indexes the given table definitions by name.
func NewTables(defs ...Table) Tables {
	out := make(Tables, len(defs))
	for _, d := range defs {
		out[d.Name] = d
	}
	return out
}

// Lookup returns the definition of table or ErrUnknownTable.
func (ts Tables) Lookup(table string) (Table, error) {
	t, ok := ts[table]
	if !ok {
		return Table{}, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	return t, nil
}

// KeyString renders a key value as a string that sorts and compares the way
// drivers without typed keys need. The kind prefix keeps "1" and 1 apart.
func KeyString(v codec.Value) string {
	switch v.Kind {
	case codec.KindNumber:
		return "N:" + v.N
	case codec.KindBool:
		return fmt.Sprintf("B:%t", v.B)
	}
	return "S:" + v.S
}
