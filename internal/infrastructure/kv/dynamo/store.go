// Package dynamo serves kv tables from Amazon DynamoDB.
package dynamo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/avatarctic/identity-kv/internal/infrastructure/kv"
	"github.com/avatarctic/identity-kv/internal/infrastructure/kv/codec"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// API is the subset of the DynamoDB client the store calls.
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
}

type Store struct {
	api    API
	tables kv.Tables
}

var _ kv.Client = (*Store)(nil)

func New(api API, tables ...kv.Table) *Store {
	return &Store{api: api, tables: kv.NewTables(tables...)}
}

func (s *Store) Get(ctx context.Context, table string, key codec.Value) (codec.Item, error) {
	t, err := s.tables.Lookup(table)
	if err != nil {
		return nil, err
	}
	av, err := toAttributeValue(key)
	if err != nil {
		return nil, err
	}
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(table),
		Key:            map[string]types.AttributeValue{t.Key: av},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if len(out.Item) == 0 {
		return nil, kv.ErrItemNotFound
	}
	return fromItem(out.Item)
}

// Query follows LastEvaluatedKey until the index is exhausted or Limit
// matches were read. Index reads are eventually consistent.
func (s *Store) Query(ctx context.Context, in kv.QueryInput) ([]codec.Item, error) {
	t, err := s.tables.Lookup(in.Table)
	if err != nil {
		return nil, err
	}
	attr, ok := t.IndexAttr(in.Index)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", kv.ErrUnknownIndex, in.Table, in.Index)
	}
	av, err := toAttributeValue(in.Value)
	if err != nil {
		return nil, err
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(in.Table),
		IndexName:                 aws.String(in.Index),
		KeyConditionExpression:    aws.String("#a = :v"),
		ExpressionAttributeNames:  map[string]string{"#a": attr},
		ExpressionAttributeValues: map[string]types.AttributeValue{":v": av},
	}
	if in.Limit > 0 {
		input.Limit = aws.Int32(int32(in.Limit))
	}

	var out []codec.Item
	for {
		page, err := s.api.Query(ctx, input)
		if err != nil {
			return nil, err
		}
		for _, raw := range page.Items {
			item, err := fromItem(raw)
			if err != nil {
				return nil, err
			}
			out = append(out, item)
			if in.Limit > 0 && len(out) >= in.Limit {
				return out, nil
			}
		}
		if len(page.LastEvaluatedKey) == 0 {
			return out, nil
		}
		input.ExclusiveStartKey = page.LastEvaluatedKey
	}
}

// Scan reads a single page. The cursor is the JSON form of LastEvaluatedKey.
func (s *Store) Scan(ctx context.Context, in kv.ScanInput) (*kv.ScanOutput, error) {
	if _, err := s.tables.Lookup(in.Table); err != nil {
		return nil, err
	}

	input := &dynamodb.ScanInput{TableName: aws.String(in.Table)}
	if in.Limit > 0 {
		input.Limit = aws.Int32(int32(in.Limit))
	}
	if in.Cursor != "" {
		start, err := decodeCursor(in.Cursor)
		if err != nil {
			return nil, err
		}
		input.ExclusiveStartKey = start
	}
	if f := in.Filter; f != nil {
		av, err := toAttributeValue(f.Value)
		if err != nil {
			return nil, err
		}
		input.FilterExpression = aws.String(fmt.Sprintf("#f %s :f", f.Op))
		input.ExpressionAttributeNames = map[string]string{"#f": f.Attr}
		input.ExpressionAttributeValues = map[string]types.AttributeValue{":f": av}
	}

	page, err := s.api.Scan(ctx, input)
	if err != nil {
		return nil, err
	}

	out := &kv.ScanOutput{}
	for _, raw := range page.Items {
		item, err := fromItem(raw)
		if err != nil {
			return nil, err
		}
		out.Items = append(out.Items, item)
	}
	if len(page.LastEvaluatedKey) > 0 {
		if out.Cursor, err = encodeCursor(page.LastEvaluatedKey); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) PutIfAbsent(ctx context.Context, table string, item codec.Item) error {
	t, err := s.tables.Lookup(table)
	if err != nil {
		return err
	}
	if _, ok := item[t.Key]; !ok {
		return fmt.Errorf("dynamo: item has no %s attribute", t.Key)
	}
	raw, err := toItem(item)
	if err != nil {
		return err
	}

	_, err = s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(table),
		Item:                     raw,
		ConditionExpression:      aws.String("attribute_not_exists(#k)"),
		ExpressionAttributeNames: map[string]string{"#k": t.Key},
	})
	var conditionFailed *types.ConditionalCheckFailedException
	if errors.As(err, &conditionFailed) {
		return kv.ErrConditionFailed
	}
	return err
}

// Update issues a single SET expression; DynamoDB creates the item when absent.
func (s *Store) Update(ctx context.Context, table string, key codec.Value, set codec.Item) error {
	t, err := s.tables.Lookup(table)
	if err != nil {
		return err
	}
	keyAV, err := toAttributeValue(key)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(set))
	for name := range set {
		if name != t.Key {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	input := &dynamodb.UpdateItemInput{
		TableName: aws.String(table),
		Key:       map[string]types.AttributeValue{t.Key: keyAV},
	}
	if len(names) > 0 {
		clauses := make([]string, len(names))
		input.ExpressionAttributeNames = make(map[string]string, len(names))
		input.ExpressionAttributeValues = make(map[string]types.AttributeValue, len(names))
		for i, name := range names {
			av, err := toAttributeValue(set[name])
			if err != nil {
				return fmt.Errorf("dynamo: attribute %s: %w", name, err)
			}
			n, v := fmt.Sprintf("#a%d", i), fmt.Sprintf(":v%d", i)
			clauses[i] = n + " = " + v
			input.ExpressionAttributeNames[n] = name
			input.ExpressionAttributeValues[v] = av
		}
		input.UpdateExpression = aws.String("SET " + strings.Join(clauses, ", "))
	}

	_, err = s.api.UpdateItem(ctx, input)
	return err
}

func (s *Store) Delete(ctx context.Context, table string, key codec.Value) error {
	t, err := s.tables.Lookup(table)
	if err != nil {
		return err
	}
	av, err := toAttributeValue(key)
	if err != nil {
		return err
	}
	_, err = s.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(table),
		Key:       map[string]types.AttributeValue{t.Key: av},
	})
	return err
}

func toAttributeValue(v codec.Value) (types.AttributeValue, error) {
	switch v.Kind {
	case codec.KindNull:
		return &types.AttributeValueMemberNULL{Value: true}, nil
	case codec.KindString:
		return &types.AttributeValueMemberS{Value: v.S}, nil
	case codec.KindNumber:
		return &types.AttributeValueMemberN{Value: v.N}, nil
	case codec.KindBool:
		return &types.AttributeValueMemberBOOL{Value: v.B}, nil
	}
	return nil, fmt.Errorf("dynamo: unsupported kind %q", v.Kind)
}

func fromAttributeValue(av types.AttributeValue) (codec.Value, error) {
	switch v := av.(type) {
	case *types.AttributeValueMemberNULL:
		return codec.Null(), nil
	case *types.AttributeValueMemberS:
		return codec.String(v.Value), nil
	case *types.AttributeValueMemberN:
		return codec.Number(v.Value), nil
	case *types.AttributeValueMemberBOOL:
		return codec.Bool(v.Value), nil
	}
	return codec.Value{}, fmt.Errorf("%w: unsupported attribute type %T", codec.ErrCorruptAttribute, av)
}

func toItem(item codec.Item) (map[string]types.AttributeValue, error) {
	out := make(map[string]types.AttributeValue, len(item))
	for name, v := range item {
		av, err := toAttributeValue(v)
		if err != nil {
			return nil, fmt.Errorf("dynamo: attribute %s: %w", name, err)
		}
		out[name] = av
	}
	return out, nil
}

func fromItem(raw map[string]types.AttributeValue) (codec.Item, error) {
	out := make(codec.Item, len(raw))
	for name, av := range raw {
		v, err := fromAttributeValue(av)
		if err != nil {
			return nil, fmt.Errorf("attribute %s: %w", name, err)
		}
		out[name] = v
	}
	return out, nil
}

func encodeCursor(key map[string]types.AttributeValue) (string, error) {
	item, err := fromItem(key)
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(item)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func decodeCursor(cursor string) (map[string]types.AttributeValue, error) {
	var item codec.Item
	if err := json.Unmarshal([]byte(cursor), &item); err != nil {
		return nil, fmt.Errorf("dynamo: malformed cursor: %w", err)
	}
	return toItem(item)
}
