package pip

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProgramHash(t *testing.T) {
	t.Parallel()
	a := ProgramHash([]byte("(table t exact)"))
	b := ProgramHash([]byte("(table t exact)"))
	c := ProgramHash([]byte("(table u exact)"))
	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
	require.False(t, a.IsZero())

	id, err := ParseProgramID(a.String())
	require.NoError(t, err)
	require.Equal(t, a, id)

	tag := ProgramHash(nil)
	require.NotEqual(t, a, Hash(&tag, []byte("(table t exact)")))
}
