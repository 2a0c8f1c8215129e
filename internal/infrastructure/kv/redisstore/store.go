// Package redisstore serves kv tables from Redis. Each item is a JSON string;
// secondary indexes are sets of item keys and a sorted set of all keys per
// table gives scans a stable order.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/avatarctic/identity-kv/internal/infrastructure/kv"
	"github.com/avatarctic/identity-kv/internal/infrastructure/kv/codec"
	"github.com/go-redis/redis/v8"
)

// maxWatchRetries bounds optimistic transaction retries on contended keys.
const maxWatchRetries = 8

type Store struct {
	rdb    redis.UniversalClient
	prefix string
	tables kv.Tables
}

var _ kv.Client = (*Store)(nil)

func New(rdb redis.UniversalClient, prefix string, tables ...kv.Table) *Store {
	return &Store{rdb: rdb, prefix: prefix, tables: kv.NewTables(tables...)}
}

func (s *Store) itemKey(table, key string) string {
	return fmt.Sprintf("%s:%s:item:%s", s.prefix, table, key)
}

func (s *Store) keysKey(table string) string {
	return fmt.Sprintf("%s:%s:keys", s.prefix, table)
}

func (s *Store) indexKey(table, index string, v codec.Value) string {
	return fmt.Sprintf("%s:%s:idx:%s:%s", s.prefix, table, index, kv.KeyString(v))
}

func (s *Store) Get(ctx context.Context, table string, key codec.Value) (codec.Item, error) {
	if _, err := s.tables.Lookup(table); err != nil {
		return nil, err
	}
	raw, err := s.rdb.Get(ctx, s.itemKey(table, kv.KeyString(key))).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, kv.ErrItemNotFound
	}
	if err != nil {
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

	members, err := s.rdb.SMembers(ctx, s.indexKey(in.Table, in.Index, in.Value)).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(members)

	items, err := s.load(ctx, in.Table, members)
	if err != nil {
		return nil, err
	}

	filter := &kv.Filter{Attr: attr, Op: kv.OpEq, Value: in.Value}
	out := make([]codec.Item, 0, len(items))
	for _, item := range items {
		if !filter.Match(item) {
			continue
		}
		out = append(out, item)
		if in.Limit > 0 && len(out) >= in.Limit {
			break
		}
	}
	return out, nil
}

// Scan pages through the per-table key set in lexical order.
func (s *Store) Scan(ctx context.Context, in kv.ScanInput) (*kv.ScanOutput, error) {
	if _, err := s.tables.Lookup(in.Table); err != nil {
		return nil, err
	}

	start := "-"
	if in.Cursor != "" {
		start = "(" + in.Cursor
	}
	members, err := s.rdb.ZRangeByLex(ctx, s.keysKey(in.Table), &redis.ZRangeBy{
		Min:   start,
		Max:   "+",
		Count: int64(in.Limit),
	}).Result()
	if err != nil {
		return nil, err
	}

	items, err := s.load(ctx, in.Table, members)
	if err != nil {
		return nil, err
	}

	out := &kv.ScanOutput{}
	for _, item := range items {
		if in.Filter.Match(item) {
			out.Items = append(out.Items, item)
		}
	}
	if in.Limit > 0 && len(members) == in.Limit {
		out.Cursor = members[len(members)-1]
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
		return fmt.Errorf("redisstore: item has no %s attribute", t.Key)
	}
	raw, err := json.Marshal(item)
	if err != nil {
		return err
	}

	k := kv.KeyString(key)
	itemKey := s.itemKey(table, k)

	// The item and its index entries are written in one MULTI so a stored
	// item is never missing from the key set or an index.
	return s.watch(ctx, itemKey, func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, itemKey).Result()
		if err != nil {
			return err
		}
		if exists > 0 {
			return kv.ErrConditionFailed
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, itemKey, raw, 0)
			pipe.ZAdd(ctx, s.keysKey(table), &redis.Z{Member: k})
			for index, attr := range t.Indexes {
				if v, ok := item[attr]; ok && !v.IsNull() {
					pipe.SAdd(ctx, s.indexKey(table, index, v), k)
				}
			}
			return nil
		})
		return err
	})
}

func (s *Store) Update(ctx context.Context, table string, key codec.Value, set codec.Item) error {
	t, err := s.tables.Lookup(table)
	if err != nil {
		return err
	}
	k := kv.KeyString(key)
	itemKey := s.itemKey(table, k)

	return s.watch(ctx, itemKey, func(tx *redis.Tx) error {
		current := codec.Item{t.Key: key}
		raw, err := tx.Get(ctx, itemKey).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			if current, err = decode(raw); err != nil {
				return err
			}
		}

		next := current.Clone()
		for name, v := range set {
			if name == t.Key {
				continue
			}
			next[name] = v
		}
		encoded, err := json.Marshal(next)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, itemKey, encoded, 0)
			pipe.ZAdd(ctx, s.keysKey(table), &redis.Z{Member: k})
			for index, attr := range t.Indexes {
				before, hadBefore := current[attr]
				after, hasAfter := next[attr]
				if hadBefore && hasAfter && before.Equal(after) {
					continue
				}
				if hadBefore && !before.IsNull() {
					pipe.SRem(ctx, s.indexKey(table, index, before), k)
				}
				if hasAfter && !after.IsNull() {
					pipe.SAdd(ctx, s.indexKey(table, index, after), k)
				}
			}
			return nil
		})
		return err
	})
}

func (s *Store) Delete(ctx context.Context, table string, key codec.Value) error {
	t, err := s.tables.Lookup(table)
	if err != nil {
		return err
	}
	k := kv.KeyString(key)
	itemKey := s.itemKey(table, k)

	return s.watch(ctx, itemKey, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, itemKey).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		current, err := decode(raw)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, itemKey)
			pipe.ZRem(ctx, s.keysKey(table), k)
			for index, attr := range t.Indexes {
				if v, ok := current[attr]; ok && !v.IsNull() {
					pipe.SRem(ctx, s.indexKey(table, index, v), k)
				}
			}
			return nil
		})
		return err
	})
}

// watch runs fn in an optimistic transaction on key, retrying when another
// client modified the key first.
func (s *Store) watch(ctx context.Context, key string, fn func(tx *redis.Tx) error) error {
	for i := 0; i < maxWatchRetries; i++ {
		err := s.rdb.Watch(ctx, fn, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("redisstore: %s: %w", key, redis.TxFailedErr)
}

// load fetches the items for keys, skipping keys deleted in between.
func (s *Store) load(ctx context.Context, table string, keys []string) ([]codec.Item, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	itemKeys := make([]string, len(keys))
	for i, k := range keys {
		itemKeys[i] = s.itemKey(table, k)
	}
	values, err := s.rdb.MGet(ctx, itemKeys...).Result()
	if err != nil {
		return nil, err
	}
	items := make([]codec.Item, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		item, err := decode([]byte(raw))
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func decode(raw []byte) (codec.Item, error) {
	var item codec.Item
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, fmt.Errorf("redisstore: malformed item: %w", err)
	}
	return item, nil
}
