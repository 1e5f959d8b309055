package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarancss/mcw/lib/store"
	"github.com/tarancss/mcw/lib/store/memory"
)

func TestNew(t *testing.T) {
	d, err := New("", "", nil)
	require.NoError(t, err)
	assert.IsType(t, store.Nop{}, d)

	d, err = New(MEMORY, "", nil)
	require.NoError(t, err)
	assert.IsType(t, &memory.Memory{}, d)
	assert.NoError(t, d.Close(context.Background()))

	_, err = New("cassandra", "", nil)
	assert.Error(t, err)
}
