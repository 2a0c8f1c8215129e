// Package kvtest holds a behavioural suite shared by every kv.Client driver.
package kvtest

import (
	"context"
	"fmt"
	"testing"

	"github.com/avatarctic/identity-kv/internal/infrastructure/kv"
	"github.com/avatarctic/identity-kv/internal/infrastructure/kv/codec"
	"github.com/stretchr/testify/require"
)

// Widgets is the table the suite runs against.
var Widgets = kv.Table{
	Name:    "Widgets",
	Key:     "Id",
	Indexes: map[string]string{"ColorIndex": "Color"},
}

func widget(id, color string, rank int64) codec.Item {
	return codec.Item{
		"Id":    codec.String(id),
		"Color": codec.String(color),
		"Rank":  codec.Int(rank),
		"Note":  codec.Null(),
	}
}

// Run exercises client, which must serve an empty Widgets table.
func Run(t *testing.T, client kv.Client) {
	ctx := context.Background()

	t.Run("get missing item", func(t *testing.T) {
		_, err := client.Get(ctx, Widgets.Name, codec.String("missing"))
		require.ErrorIs(t, err, kv.ErrItemNotFound)
	})

	t.Run("put if absent then get", func(t *testing.T) {
		require.NoError(t, client.PutIfAbsent(ctx, Widgets.Name, widget("w-1", "red", 3)))

		item, err := client.Get(ctx, Widgets.Name, codec.String("w-1"))
		require.NoError(t, err)
		require.Equal(t, "red", item["Color"].S)
		require.Equal(t, "3", item["Rank"].N)
		require.True(t, item["Note"].IsNull())
	})

	t.Run("put if absent rejects existing key", func(t *testing.T) {
		err := client.PutIfAbsent(ctx, Widgets.Name, widget("w-1", "blue", 1))
		require.ErrorIs(t, err, kv.ErrConditionFailed)

		item, err := client.Get(ctx, Widgets.Name, codec.String("w-1"))
		require.NoError(t, err)
		require.Equal(t, "red", item["Color"].S)
	})

	t.Run("update sets attributes", func(t *testing.T) {
		err := client.Update(ctx, Widgets.Name, codec.String("w-1"), codec.Item{
			"Color": codec.String("green"),
			"Note":  codec.String("repainted"),
		})
		require.NoError(t, err)

		item, err := client.Get(ctx, Widgets.Name, codec.String("w-1"))
		require.NoError(t, err)
		require.Equal(t, "green", item["Color"].S)
		require.Equal(t, "repainted", item["Note"].S)
		require.Equal(t, "3", item["Rank"].N)
	})

	t.Run("query by index", func(t *testing.T) {
		require.NoError(t, client.PutIfAbsent(ctx, Widgets.Name, widget("w-2", "green", 5)))
		require.NoError(t, client.PutIfAbsent(ctx, Widgets.Name, widget("w-3", "black", 7)))

		items, err := client.Query(ctx, kv.QueryInput{Table: Widgets.Name, Index: "ColorIndex", Value: codec.String("green")})
		require.NoError(t, err)
		require.Len(t, items, 2)

		items, err = client.Query(ctx, kv.QueryInput{Table: Widgets.Name, Index: "ColorIndex", Value: codec.String("green"), Limit: 1})
		require.NoError(t, err)
		require.Len(t, items, 1)

		items, err = client.Query(ctx, kv.QueryInput{Table: Widgets.Name, Index: "ColorIndex", Value: codec.String("purple")})
		require.NoError(t, err)
		require.Empty(t, items)
	})

	t.Run("query on stale index entry after update", func(t *testing.T) {
		require.NoError(t, client.Update(ctx, Widgets.Name, codec.String("w-3"), codec.Item{"Color": codec.String("white")}))

		items, err := client.Query(ctx, kv.QueryInput{Table: Widgets.Name, Index: "ColorIndex", Value: codec.String("black")})
		require.NoError(t, err)
		require.Empty(t, items)
	})

	t.Run("scan pages through every item", func(t *testing.T) {
		for i := 10; i < 25; i++ {
			require.NoError(t, client.PutIfAbsent(ctx, Widgets.Name, widget(fmt.Sprintf("w-%d", i), "grey", int64(i))))
		}

		seen := map[string]bool{}
		cursor := ""
		pages := 0
		for {
			out, err := client.Scan(ctx, kv.ScanInput{Table: Widgets.Name, Limit: 4, Cursor: cursor})
			require.NoError(t, err)
			pages++
			for _, item := range out.Items {
				seen[item["Id"].S] = true
			}
			if out.Cursor == "" {
				break
			}
			cursor = out.Cursor
			require.Less(t, pages, 50)
		}
		require.Len(t, seen, 18)
		require.Greater(t, pages, 1)
	})

	t.Run("scan with filter", func(t *testing.T) {
		var matched []codec.Item
		cursor := ""
		for {
			out, err := client.Scan(ctx, kv.ScanInput{
				Table:  Widgets.Name,
				Limit:  5,
				Cursor: cursor,
				Filter: &kv.Filter{Attr: "Rank", Op: kv.OpLt, Value: codec.Int(12)},
			})
			require.NoError(t, err)
			matched = append(matched, out.Items...)
			if out.Cursor == "" {
				break
			}
			cursor = out.Cursor
		}
		// w-1 (3), w-2 (5), w-3 (7), w-10 (10), w-11 (11)
		require.Len(t, matched, 5)
	})

	t.Run("delete is unconditional", func(t *testing.T) {
		require.NoError(t, client.Delete(ctx, Widgets.Name, codec.String("w-2")))
		require.NoError(t, client.Delete(ctx, Widgets.Name, codec.String("w-2")))

		_, err := client.Get(ctx, Widgets.Name, codec.String("w-2"))
		require.ErrorIs(t, err, kv.ErrItemNotFound)

		items, err := client.Query(ctx, kv.QueryInput{Table: Widgets.Name, Index: "ColorIndex", Value: codec.String("green")})
		require.NoError(t, err)
		require.Len(t, items, 1)
	})
}
