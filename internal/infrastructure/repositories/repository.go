package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/avatarctic/identity-kv/internal/core/ports"
	"github.com/avatarctic/identity-kv/internal/infrastructure/kv"
	"github.com/avatarctic/identity-kv/internal/infrastructure/kv/codec"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// DefaultPageSize is the scan page size used by GetAll and cleanup sweeps.
const DefaultPageSize = 100

// Repository is the generic CRUD layer over one logical table. Entities are
// identified by a UUID key attribute declared in the schema.
type Repository[T any] struct {
	client kv.Client
	table  kv.Table
	schema *codec.Schema[T]
	logger *logrus.Logger
}

func NewRepository[T any](client kv.Client, table kv.Table, schema *codec.Schema[T], logger *logrus.Logger) *Repository[T] {
	return &Repository[T]{
		client: client,
		table:  table,
		schema: schema,
		logger: logger,
	}
}

// Table returns the table definition the repository is bound to.
func (r *Repository[T]) Table() kv.Table {
	return r.table
}

// GetByID is a strongly consistent point lookup. It returns ports.ErrNotFound
// when the key is absent.
func (r *Repository[T]) GetByID(ctx context.Context, id uuid.UUID) (*T, error) {
	item, err := r.client.Get(ctx, r.table.Name, codec.String(id.String()))
	if err != nil {
		if errors.Is(err, kv.ErrItemNotFound) {
			r.debug(logrus.Fields{"id": id}, "kv: item not found by ID")
			return nil, fmt.Errorf("%s %s: %w", r.table.Name, id, ports.ErrNotFound)
		}
		r.fail(logrus.Fields{"id": id}, err, "kv: failed to get item by ID")
		return nil, fmt.Errorf("failed to get %s item: %w", r.table.Name, err)
	}
	return r.schema.Decode(item)
}

// GetAll scans the table page by page until the cursor is exhausted or limit
// entities were read. A limit <= 0 reads everything.
func (r *Repository[T]) GetAll(ctx context.Context, limit int) ([]*T, error) {
	return r.ScanAll(ctx, nil, limit)
}

// ScanAll is GetAll restricted to items matching filter.
func (r *Repository[T]) ScanAll(ctx context.Context, filter *kv.Filter, limit int) ([]*T, error) {
	var out []*T
	cursor := ""
	for {
		page, err := r.client.Scan(ctx, kv.ScanInput{
			Table:  r.table.Name,
			Limit:  DefaultPageSize,
			Cursor: cursor,
			Filter: filter,
		})
		if err != nil {
			r.fail(logrus.Fields{"cursor": cursor}, err, "kv: failed to scan table")
			return nil, fmt.Errorf("failed to scan %s: %w", r.table.Name, err)
		}
		for _, item := range page.Items {
			entity, err := r.schema.Decode(item)
			if err != nil {
				return nil, err
			}
			out = append(out, entity)
			if limit > 0 && len(out) >= limit {
				return out, nil
			}
		}
		if page.Cursor == "" {
			return out, nil
		}
		cursor = page.Cursor
	}
}

// Add inserts entity unless its key is already taken, in which case it
// returns ports.ErrConflict.
func (r *Repository[T]) Add(ctx context.Context, entity *T) error {
	item, err := r.schema.Encode(entity)
	if err != nil {
		return err
	}
	key := item[r.schema.Key()]

	if err := r.client.PutIfAbsent(ctx, r.table.Name, item); err != nil {
		if errors.Is(err, kv.ErrConditionFailed) {
			r.debug(logrus.Fields{"id": key.S}, "kv: item already exists")
			return fmt.Errorf("%s %s: %w", r.table.Name, key.S, ports.ErrConflict)
		}
		r.fail(logrus.Fields{"id": key.S}, err, "kv: failed to add item")
		return fmt.Errorf("failed to add %s item: %w", r.table.Name, err)
	}
	r.debug(logrus.Fields{"id": key.S}, "kv: item added")
	return nil
}

// Update overwrites every non-key attribute with the entity's current value.
// There is no concurrency token: the last writer wins.
func (r *Repository[T]) Update(ctx context.Context, entity *T) error {
	item, err := r.schema.Encode(entity)
	if err != nil {
		return err
	}
	key := item[r.schema.Key()]
	delete(item, r.schema.Key())

	if err := r.client.Update(ctx, r.table.Name, key, item); err != nil {
		r.fail(logrus.Fields{"id": key.S}, err, "kv: failed to update item")
		return fmt.Errorf("failed to update %s item: %w", r.table.Name, err)
	}
	return nil
}

// SetAttributes updates only the given attributes of the item with key id.
func (r *Repository[T]) SetAttributes(ctx context.Context, id uuid.UUID, set codec.Item) error {
	if err := r.client.Update(ctx, r.table.Name, codec.String(id.String()), set); err != nil {
		r.fail(logrus.Fields{"id": id}, err, "kv: failed to set attributes")
		return fmt.Errorf("failed to update %s item: %w", r.table.Name, err)
	}
	return nil
}

// Delete removes the item with key id. Deleting a missing key succeeds.
func (r *Repository[T]) Delete(ctx context.Context, id uuid.UUID) error {
	if err := r.client.Delete(ctx, r.table.Name, codec.String(id.String())); err != nil {
		r.fail(logrus.Fields{"id": id}, err, "kv: failed to delete item")
		return fmt.Errorf("failed to delete %s item: %w", r.table.Name, err)
	}
	return nil
}

// QueryIndex returns the entities whose indexed attribute equals value.
func (r *Repository[T]) QueryIndex(ctx context.Context, index string, value codec.Value, limit int) ([]*T, error) {
	items, err := r.client.Query(ctx, kv.QueryInput{
		Table: r.table.Name,
		Index: index,
		Value: value,
		Limit: limit,
	})
	if err != nil {
		r.fail(logrus.Fields{"index": index}, err, "kv: failed to query index")
		return nil, fmt.Errorf("failed to query %s.%s: %w", r.table.Name, index, err)
	}

	out := make([]*T, 0, len(items))
	for _, item := range items {
		entity, err := r.schema.Decode(item)
		if err != nil {
			return nil, err
		}
		out = append(out, entity)
	}
	return out, nil
}

func (r *Repository[T]) debug(fields logrus.Fields, msg string) {
	if r.logger == nil {
		return
	}
	fields["table"] = r.table.Name
	r.logger.WithFields(fields).Debug(msg)
}

func (r *Repository[T]) fail(fields logrus.Fields, err error, msg string) {
	if r.logger == nil {
		return
	}
	fields["table"] = r.table.Name
	r.logger.WithFields(fields).WithError(err).Error(msg)
}
