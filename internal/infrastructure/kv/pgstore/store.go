// Package pgstore serves kv tables from a single PostgreSQL jsonb table.
package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/avatarctic/identity-kv/internal/infrastructure/kv"
	"github.com/avatarctic/identity-kv/internal/infrastructure/kv/codec"
	"github.com/jmoiron/sqlx"
)

const (
	getQuery = `SELECT attrs FROM kv_items WHERE tbl = $1 AND pk = $2`

	// Containment keeps the GIN index usable for index lookups.
	queryByAttr = `SELECT attrs FROM kv_items
		WHERE tbl = $1 AND attrs @> jsonb_build_object($2::text, $3::jsonb)
		ORDER BY pk`

	scanQuery = `SELECT pk, attrs FROM kv_items WHERE tbl = $1 AND pk > $2 ORDER BY pk`

	insertQuery = `INSERT INTO kv_items (tbl, pk, attrs) VALUES ($1, $2, $3)
		ON CONFLICT (tbl, pk) DO NOTHING`

	upsertQuery = `INSERT INTO kv_items (tbl, pk, attrs) VALUES ($1, $2, $3)
		ON CONFLICT (tbl, pk) DO UPDATE SET attrs = kv_items.attrs || EXCLUDED.attrs, updated_at = NOW()`

	deleteQuery = `DELETE FROM kv_items WHERE tbl = $1 AND pk = $2`
)

type Store struct {
	db     *sqlx.DB
	tables kv.Tables
}

var _ kv.Client = (*Store)(nil)

func New(db *sqlx.DB, tables ...kv.Table) *Store {
	return &Store{db: db, tables: kv.NewTables(tables...)}
}

type row struct {
	PK    string `db:"pk"`
	Attrs []byte `db:"attrs"`
}

func (s *Store) Get(ctx context.Context, table string, key codec.Value) (codec.Item, error) {
	if _, err := s.tables.Lookup(table); err != nil {
		return nil, err
	}
	var raw []byte
	if err := s.db.GetContext(ctx, &raw, getQuery, table, kv.KeyString(key)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, kv.ErrItemNotFound
		}
		return nil, err
	}
	return decode(raw)
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
	value, err := json.Marshal(in.Value)
	if err != nil {
		return nil, err
	}

	query := queryByAttr
	args := []interface{}{in.Table, attr, string(value)}
	if in.Limit > 0 {
		query += " LIMIT $4"
		args = append(args, in.Limit)
	}

	var raws [][]byte
	if err := s.db.SelectContext(ctx, &raws, query, args...); err != nil {
		return nil, err
	}
	out := make([]codec.Item, 0, len(raws))
	for _, raw := range raws {
		item, err := decode(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

// Scan reads rows in key order. The filter is applied after the page is
// read, so Limit bounds examined rows rather than matches.
func (s *Store) Scan(ctx context.Context, in kv.ScanInput) (*kv.ScanOutput, error) {
	if _, err := s.tables.Lookup(in.Table); err != nil {
		return nil, err
	}

	query := scanQuery
	args := []interface{}{in.Table, in.Cursor}
	if in.Limit > 0 {
		query += " LIMIT $3"
		args = append(args, in.Limit)
	}

	var rows []row
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}

	out := &kv.ScanOutput{}
	for _, r := range rows {
		item, err := decode(r.Attrs)
		if err != nil {
			return nil, err
		}
		if in.Filter.Match(item) {
			out.Items = append(out.Items, item)
		}
	}
	if in.Limit > 0 && len(rows) == in.Limit {
		out.Cursor = rows[len(rows)-1].PK
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
		return fmt.Errorf("pgstore: item has no %s attribute", t.Key)
	}
	raw, err := json.Marshal(item)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, insertQuery, table, kv.KeyString(key), raw)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return kv.ErrConditionFailed
	}
	return nil
}

func (s *Store) Update(ctx context.Context, table string, key codec.Value, set codec.Item) error {
	t, err := s.tables.Lookup(table)
	if err != nil {
		return err
	}
	attrs := make(codec.Item, len(set)+1)
	for name, v := range set {
		attrs[name] = v
	}
	attrs[t.Key] = key
	raw, err := json.Marshal(attrs)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, upsertQuery, table, kv.KeyString(key), raw)
	return err
}

func (s *Store) Delete(ctx context.Context, table string, key codec.Value) error {
	if _, err := s.tables.Lookup(table); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, deleteQuery, table, kv.KeyString(key))
	return err
}

func decode(raw []byte) (codec.Item, error) {
	var item codec.Item
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, fmt.Errorf("pgstore: malformed item: %w", err)
	}
	return item, nil
}
