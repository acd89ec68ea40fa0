package cadata

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStringRoundTrip(t *testing.T) {
	t.Parallel()
	var id ID
	for i := range id {
		id[i] = byte(i * 7)
	}
	id2, err := ParseID(id.String())
	require.NoError(t, err)
	require.Equal(t, id, id2)

	_, err = ParseID("abc")
	require.Error(t, err)
}

func TestJSON(t *testing.T) {
	t.Parallel()
	id := IDFromBytes([]byte("0123456789abcdef0123456789abcdef"))
	data, err := json.Marshal(id)
	require.NoError(t, err)
	var id2 ID
	require.NoError(t, json.Unmarshal(data, &id2))
	require.Equal(t, id, id2)
	require.Equal(t, 0, id.Compare(id2))
	require.False(t, id.IsZero())
}

func TestScan(t *testing.T) {
	t.Parallel()
	id := IDFromBytes([]byte{1, 2, 3})
	v, err := id.Value()
	require.NoError(t, err)
	var id2 ID
	require.NoError(t, id2.Scan(v))
	require.Equal(t, id, id2)
	require.Error(t, id2.Scan("nope"))
	require.Error(t, id2.Scan([]byte{1}))
}
