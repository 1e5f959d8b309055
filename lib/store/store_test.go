package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "BTC", StringKey("BTC").String())
	assert.Equal(t, "USDT/0xabc", CompositeKey("USDT", "0xabc").String())
	assert.Equal(t, "42", NumberKey(42).String())
	assert.True(t, Key{}.IsZero())
	assert.Equal(t, []string{"a", "b"}, CompositeKey("a", "b").Parts())
}

func TestRecord(t *testing.T) {
	ws := WatcherState{Block: 10, Bh: []string{"0x1", "0x2"}, Bhi: 1, Map: map[string]bool{"0xaa": true}}
	r, err := ToRecord(ws)
	require.NoError(t, err)
	assert.Equal(t, 10.0, r["block"])

	var back WatcherState
	require.NoError(t, Decode(r, &back))
	assert.Equal(t, ws, back)

	m := Merge(nil, Record{"a": 1})
	m = Merge(m, Record{"b": 2, "a": 3})
	assert.Equal(t, Record{"a": 3, "b": 2}, m)
}

func TestNop(t *testing.T) {
	ctx := context.Background()
	tb := Nop{}.Table(TableTransactions)
	r, err := tb.Get(ctx, StringKey("x"))
	assert.NoError(t, err)
	assert.Nil(t, r)
	all, err := tb.GetAll(ctx)
	assert.NoError(t, err)
	assert.Empty(t, all)
	assert.NoError(t, tb.Put(ctx, StringKey("x"), Record{}))
	assert.NoError(t, tb.Update(ctx, StringKey("x"), Record{}))
	assert.NoError(t, tb.Delete(ctx, StringKey("x")))
	assert.NoError(t, tb.BatchPut(ctx, nil))
	assert.NoError(t, tb.BatchDelete(ctx, nil))
	assert.NoError(t, tb.BatchUpdate(ctx, nil))
	assert.NoError(t, Nop{}.Close(ctx))
}
