package dynamo

import (
	"context"
	"errors"
	"testing"

	"github.com/avatarctic/identity-kv/internal/infrastructure/kv"
	"github.com/avatarctic/identity-kv/internal/infrastructure/kv/codec"
	"github.com/avatarctic/identity-kv/internal/infrastructure/kv/kvtest"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI records requests and replays canned responses.
type fakeAPI struct {
	API

	getOut      *dynamodb.GetItemOutput
	putErr      error
	queryPages  []*dynamodb.QueryOutput
	scanOut     *dynamodb.ScanOutput
	tableExists bool

	gets    []*dynamodb.GetItemInput
	puts    []*dynamodb.PutItemInput
	updates []*dynamodb.UpdateItemInput
	queries []*dynamodb.QueryInput
	scans   []*dynamodb.ScanInput
	creates []*dynamodb.CreateTableInput
}

func (f *fakeAPI) GetItem(ctx context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.gets = append(f.gets, in)
	return f.getOut, nil
}

func (f *fakeAPI) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.puts = append(f.puts, in)
	return &dynamodb.PutItemOutput{}, f.putErr
}

func (f *fakeAPI) UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.updates = append(f.updates, in)
	return &dynamodb.UpdateItemOutput{}, nil
}

func (f *fakeAPI) Query(ctx context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	copied := *in
	f.queries = append(f.queries, &copied)
	page := f.queryPages[0]
	f.queryPages = f.queryPages[1:]
	return page, nil
}

func (f *fakeAPI) Scan(ctx context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.scans = append(f.scans, in)
	return f.scanOut, nil
}

func (f *fakeAPI) DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	if !f.tableExists {
		return nil, &types.ResourceNotFoundException{Message: aws.String("not found")}
	}
	return &dynamodb.DescribeTableOutput{Table: &types.TableDescription{
		TableName:   in.TableName,
		TableStatus: types.TableStatusActive,
	}}, nil
}

func (f *fakeAPI) CreateTable(ctx context.Context, in *dynamodb.CreateTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	f.creates = append(f.creates, in)
	f.tableExists = true
	return &dynamodb.CreateTableOutput{}, nil
}

func sAttr(s string) *types.AttributeValueMemberS { return &types.AttributeValueMemberS{Value: s} }

func TestGet_MissingItem(t *testing.T) {
	api := &fakeAPI{getOut: &dynamodb.GetItemOutput{}}
	store := New(api, kvtest.Widgets)

	_, err := store.Get(context.Background(), "Widgets", codec.String("w-1"))
	require.ErrorIs(t, err, kv.ErrItemNotFound)
	require.Len(t, api.gets, 1)
	assert.True(t, aws.ToBool(api.gets[0].ConsistentRead))
	assert.Equal(t, sAttr("w-1"), api.gets[0].Key["Id"])
}

func TestGet_ConvertsEveryKind(t *testing.T) {
	api := &fakeAPI{getOut: &dynamodb.GetItemOutput{Item: map[string]types.AttributeValue{
		"Id":    sAttr("w-1"),
		"Rank":  &types.AttributeValueMemberN{Value: "42"},
		"Shiny": &types.AttributeValueMemberBOOL{Value: true},
		"Note":  &types.AttributeValueMemberNULL{Value: true},
	}}}
	store := New(api, kvtest.Widgets)

	item, err := store.Get(context.Background(), "Widgets", codec.String("w-1"))
	require.NoError(t, err)
	assert.Equal(t, codec.Item{
		"Id":    codec.String("w-1"),
		"Rank":  codec.Number("42"),
		"Shiny": codec.Bool(true),
		"Note":  codec.Null(),
	}, item)
}

func TestGet_UnsupportedAttributeIsCorrupt(t *testing.T) {
	api := &fakeAPI{getOut: &dynamodb.GetItemOutput{Item: map[string]types.AttributeValue{
		"Id":   sAttr("w-1"),
		"Tags": &types.AttributeValueMemberSS{Value: []string{"a"}},
	}}}
	_, err := New(api, kvtest.Widgets).Get(context.Background(), "Widgets", codec.String("w-1"))
	require.ErrorIs(t, err, codec.ErrCorruptAttribute)
}

func TestPutIfAbsent_ConditionFailed(t *testing.T) {
	api := &fakeAPI{putErr: &types.ConditionalCheckFailedException{Message: aws.String("exists")}}
	store := New(api, kvtest.Widgets)

	err := store.PutIfAbsent(context.Background(), "Widgets", codec.Item{"Id": codec.String("w-1")})
	require.ErrorIs(t, err, kv.ErrConditionFailed)
	require.Len(t, api.puts, 1)
	assert.Equal(t, "attribute_not_exists(#k)", aws.ToString(api.puts[0].ConditionExpression))
	assert.Equal(t, "Id", api.puts[0].ExpressionAttributeNames["#k"])
}

func TestPutIfAbsent_OtherErrorsPassThrough(t *testing.T) {
	boom := errors.New("throttled")
	store := New(&fakeAPI{putErr: boom}, kvtest.Widgets)

	err := store.PutIfAbsent(context.Background(), "Widgets", codec.Item{"Id": codec.String("w-1")})
	require.ErrorIs(t, err, boom)
	require.NotErrorIs(t, err, kv.ErrConditionFailed)
}

func TestUpdate_BuildsSetExpression(t *testing.T) {
	api := &fakeAPI{}
	store := New(api, kvtest.Widgets)

	err := store.Update(context.Background(), "Widgets", codec.String("w-1"), codec.Item{
		"Id":    codec.String("ignored"),
		"Rank":  codec.Int(2),
		"Color": codec.String("red"),
	})
	require.NoError(t, err)
	require.Len(t, api.updates, 1)

	in := api.updates[0]
	assert.Equal(t, "SET #a0 = :v0, #a1 = :v1", aws.ToString(in.UpdateExpression))
	assert.Equal(t, map[string]string{"#a0": "Color", "#a1": "Rank"}, in.ExpressionAttributeNames)
	assert.Equal(t, sAttr("red"), in.ExpressionAttributeValues[":v0"])
	assert.Equal(t, sAttr("w-1"), in.Key["Id"])
}

func TestQuery_FollowsPagesUntilLimit(t *testing.T) {
	api := &fakeAPI{queryPages: []*dynamodb.QueryOutput{
		{
			Items:            []map[string]types.AttributeValue{{"Id": sAttr("a"), "Color": sAttr("red")}},
			LastEvaluatedKey: map[string]types.AttributeValue{"Id": sAttr("a"), "Color": sAttr("red")},
		},
		{
			Items: []map[string]types.AttributeValue{{"Id": sAttr("b"), "Color": sAttr("red")}},
		},
	}}
	store := New(api, kvtest.Widgets)

	items, err := store.Query(context.Background(), kv.QueryInput{Table: "Widgets", Index: "ColorIndex", Value: codec.String("red")})
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Len(t, api.queries, 2)
	assert.Equal(t, "ColorIndex", aws.ToString(api.queries[0].IndexName))
	assert.Equal(t, "Color", api.queries[0].ExpressionAttributeNames["#a"])
	assert.Nil(t, api.queries[0].ExclusiveStartKey)
	assert.NotNil(t, api.queries[1].ExclusiveStartKey)
}

func TestQuery_UnknownIndex(t *testing.T) {
	_, err := New(&fakeAPI{}, kvtest.Widgets).Query(context.Background(), kv.QueryInput{Table: "Widgets", Index: "Nope"})
	require.ErrorIs(t, err, kv.ErrUnknownIndex)
}

func TestScan_CursorRoundTrip(t *testing.T) {
	api := &fakeAPI{scanOut: &dynamodb.ScanOutput{
		Items:            []map[string]types.AttributeValue{{"Id": sAttr("a")}},
		LastEvaluatedKey: map[string]types.AttributeValue{"Id": sAttr("a")},
	}}
	store := New(api, kvtest.Widgets)
	ctx := context.Background()

	out, err := store.Scan(ctx, kv.ScanInput{
		Table:  "Widgets",
		Limit:  1,
		Filter: &kv.Filter{Attr: "Rank", Op: kv.OpLt, Value: codec.Int(5)},
	})
	require.NoError(t, err)
	require.NotEmpty(t, out.Cursor)
	assert.Equal(t, "#f < :f", aws.ToString(api.scans[0].FilterExpression))
	assert.Equal(t, int32(1), aws.ToInt32(api.scans[0].Limit))

	api.scanOut = &dynamodb.ScanOutput{}
	out, err = store.Scan(ctx, kv.ScanInput{Table: "Widgets", Cursor: out.Cursor})
	require.NoError(t, err)
	assert.Empty(t, out.Cursor)
	assert.Equal(t, sAttr("a"), api.scans[1].ExclusiveStartKey["Id"])

	_, err = store.Scan(ctx, kv.ScanInput{Table: "Widgets", Cursor: "{not json"})
	require.Error(t, err)
}

func TestUnknownTable(t *testing.T) {
	_, err := New(&fakeAPI{}, kvtest.Widgets).Get(context.Background(), "Nope", codec.String("x"))
	require.ErrorIs(t, err, kv.ErrUnknownTable)
}

func TestEnsureTables(t *testing.T) {
	api := &fakeAPI{}
	users := kv.Table{Name: "Users", Key: "Id", Indexes: map[string]string{"EmailIndex": "Email"}}

	require.NoError(t, EnsureTables(context.Background(), api, []kv.Table{users}, nil))
	require.Len(t, api.creates, 1)

	in := api.creates[0]
	assert.Equal(t, types.BillingModePayPerRequest, in.BillingMode)
	require.Len(t, in.GlobalSecondaryIndexes, 1)
	assert.Equal(t, "EmailIndex", aws.ToString(in.GlobalSecondaryIndexes[0].IndexName))
	assert.Len(t, in.AttributeDefinitions, 2)

	// existing tables are left alone
	require.NoError(t, EnsureTables(context.Background(), api, []kv.Table{users}, nil))
	assert.Len(t, api.creates, 1)
}
