// Package memory is an in-process kv.Client used by tests and local runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/avatarctic/identity-kv/internal/infrastructure/kv"
	"github.com/avatarctic/identity-kv/internal/infrastructure/kv/codec"
)

type Store struct {
	mu     sync.RWMutex
	tables kv.Tables
	data   map[string]map[string]codec.Item
}

var _ kv.Client = (*Store)(nil)

func New(tables ...kv.Table) *Store {
	s := &Store{
		tables: kv.NewTables(tables...),
		data:   make(map[string]map[string]codec.Item, len(tables)),
	}
	for _, t := range tables {
		s.data[t.Name] = make(map[string]codec.Item)
	}
	return s
}

func (s *Store) Get(ctx context.Context, table string, key codec.Value) (codec.Item, error) {
	if _, err := s.tables.Lookup(table); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.data[table][kv.KeyString(key)]
	if !ok {
		return nil, kv.ErrItemNotFound
	}
	return item.Clone(), nil
}

func (s *Store) Query(ctx context.Context, in kv.QueryInput) ([]codec.Item, error) {
	t, err := s.tables.Lookup(in.Table)
	if err != nil {
		return nil, err
	}
	attr, ok := t.IndexAttr(in.Index)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", kv.ErrUnknownIndex, in.Table, in.Index)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	filter := &kv.Filter{Attr: attr, Op: kv.OpEq, Value: in.Value}
	var out []codec.Item
	for _, k := range s.sortedKeys(in.Table) {
		item := s.data[in.Table][k]
		if !filter.Match(item) {
			continue
		}
		out = append(out, item.Clone())
		if in.Limit > 0 && len(out) >= in.Limit {
			break
		}
	}
	return out, nil
}

// Scan pages in key order; the cursor is the last key of the previous page.
func (s *Store) Scan(ctx context.Context, in kv.ScanInput) (*kv.ScanOutput, error) {
	if _, err := s.tables.Lookup(in.Table); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := s.sortedKeys(in.Table)
	start := 0
	if in.Cursor != "" {
		start = sort.SearchStrings(keys, in.Cursor)
		if start < len(keys) && keys[start] == in.Cursor {
			start++
		}
	}

	out := &kv.ScanOutput{}
	examined := 0
	for i := start; i < len(keys); i++ {
		if in.Limit > 0 && examined == in.Limit {
			out.Cursor = keys[i-1]
			break
		}
		examined++
		item := s.data[in.Table][keys[i]]
		if in.Filter.Match(item) {
			out.Items = append(out.Items, item.Clone())
		}
	}
	return out, nil
}

func (s *Store) PutIfAbsent(ctx context.Context, table string, item codec.Item) error {
	t, err := s.tables.Lookup(table)
	if err != nil {
		return err
	}
	key, ok := item[t.Key]
	if !ok {
		return fmt.Errorf("memory: item has no %s attribute", t.Key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := kv.KeyString(key)
	if _, exists := s.data[table][k]; exists {
		return kv.ErrConditionFailed
	}
	s.data[table][k] = item.Clone()
	return nil
}

func (s *Store) Update(ctx context.Context, table string, key codec.Value, set codec.Item) error {
	t, err := s.tables.Lookup(table)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := kv.KeyString(key)
	item, ok := s.data[table][k]
	if !ok {
		item = codec.Item{t.Key: key}
	}
	for name, v := range set {
		if name == t.Key {
			continue
		}
		item[name] = v
	}
	s.data[table][k] = item
	return nil
}

func (s *Store) Delete(ctx context.Context, table string, key codec.Value) error {
	if _, err := s.tables.Lookup(table); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data[table], kv.KeyString(key))
	return nil
}

// Len reports the number of items in table.
func (s *Store) Len(table string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data[table])
}

func (s *Store) sortedKeys(table string) []string {
	keys := make([]string, 0, len(s.data[table]))
	for k := range s.data[table] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
