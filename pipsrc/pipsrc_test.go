package pipsrc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"pipdataplane.org/pip/pipast"
)

const exampleSrc = `
;; forward IPv4 to port 3, everything else to the controller
(program (entry classify)
  (table classify exact (prep (copy eth.type (key 0 16) 16) match)
    (rule 0x0800 (set (packet 0 8) 0xff) (write (output 3)) (goto l4))
    (rule miss (output controller)))
  (table l4 range (prep (advance 272) (copy (header 0 16) (key 0 16) 16) match)
    (rule (range 0 1023) (copy ipv4.src (meta 0 32) 32) (set tcp.dst (int 16 8080)))
    (rule miss drop)))
`

func TestParse(t *testing.T) {
	t.Parallel()
	prog, err := Parse(exampleSrc)
	require.NoError(t, err)
	require.Equal(t, "classify", prog.Entry)
	tables := prog.Tables()
	require.Len(t, tables, 2)

	classify := tables[0]
	require.Equal(t, pipast.MatchExact, classify.Kind)
	require.Equal(t, []pipast.Action{
		pipast.Copy{
			Src:   pipast.Field(pipast.SpacePacket, 96, 16),
			Dst:   pipast.Field(pipast.SpaceKey, 0, 16),
			Width: pipast.Lit(16),
		},
		pipast.Match{},
	}, classify.Prep)
	require.Equal(t, pipast.Rule{
		Kind: pipast.MatchExact,
		Key:  pipast.Lit(0x0800),
		Actions: []pipast.Action{
			pipast.Set{Field: pipast.Field(pipast.SpacePacket, 0, 8), Value: pipast.IntN(8, 0xff)},
			pipast.Write{Action: pipast.Output{Port: pipast.Port(3)}},
			pipast.Goto{Dest: pipast.TableRef{Index: 1}},
		},
	}, classify.Rules[0])
	require.Equal(t, pipast.Output{Port: pipast.PortExpr{Reserved: pipast.PortController}}, classify.Rules[1].Actions[0])

	l4 := tables[1]
	require.Equal(t, pipast.MatchRange, l4.Kind)
	require.Equal(t, pipast.RangeExpr{Lo: 0, Hi: 1023}, l4.Rules[0].Key)
	require.Equal(t, pipast.Set{Field: pipast.Field(pipast.SpacePacket, 288, 16), Value: pipast.IntN(16, 8080)}, l4.Rules[0].Actions[1])
}

func TestFormatRoundTrip(t *testing.T) {
	t.Parallel()
	srcs := []string{
		exampleSrc,
		`(table t exact (prep (advance 0) match) (rule 7 (set (packet 0 8) (int 8 0xff)) (output 3)))`,
		`(table w wildcard (prep match) (rule (wild 0x800 0xff) clear (output in_port)) (rule 5 (output flood)))`,
		`(table p prefix (prep match) (rule (wild 0xa000000 0xffffff) (output all)) (rule miss (output local)))`,
	}
	for _, src := range srcs {
		prog, err := Parse(src)
		require.NoError(t, err)
		out, err := Format(prog)
		require.NoError(t, err)
		t.Log(out)
		prog2, err := Parse(out)
		require.NoError(t, err)
		require.Equal(t, prog, prog2)
		// formatting is stable
		out2, err := Format(prog2)
		require.NoError(t, err)
		require.Equal(t, out, out2)
	}
}

func TestFormatLayout(t *testing.T) {
	t.Parallel()
	prog, err := Parse(`(table t exact (prep match) (rule 1 (output 1)) (rule miss drop))`)
	require.NoError(t, err)
	out, err := Format(prog)
	require.NoError(t, err)
	require.Equal(t, strings.Join([]string{
		"(table t exact (prep match)",
		"  (rule 1 (output 1))",
		"  (rule miss drop))",
		"",
	}, "\n"), out)
}

func TestParseErrors(t *testing.T) {
	t.Parallel()
	type testCase struct {
		Src string
		Err error
	}
	tcs := []testCase{
		{Src: `(table t exact (prep match)`},
		{Src: `(tabel t exact)`},
		{Src: `(table t fuzzy)`},
		{Src: `(table t exact (prep (advance)))`},
		{Src: `(table t exact (prep (copy (bogus 0 8) (key 0 8) 8)))`},
		{Src: `(table t exact (prep (set eth.nope 1)))`},
		{Src: `(table t exact (prep (set (packet 0 0) 1)))`},
		{Src: `(table t exact (prep (set (packet 0 8) (int 4 0xff))))`},
		{Src: `(table t exact (prep (output nowhere)))`},
		{Src: `(table t exact (prep match) (rule 0x1_0000_0000_0000_0000))`},
		{Src: `(table t exact (prep (goto u)))`, Err: pipast.ErrUnresolved},
		{Src: `(table t exact (prep drop match))`, Err: pipast.ErrTerminatorPosition},
		{Src: `(table t exact (prep match) (rule (range 1 2)))`, Err: pipast.ErrKindMismatch},
		{Src: `(table t exact (prep match) (rule miss) (rule 1))`, Err: pipast.ErrMissNotLast},
		{Src: `(table t exact) (meter m)`, Err: pipast.ErrUnimplemented},
		{Src: `(program (entry u) (table t exact))`, Err: pipast.ErrNoEntry},
		{Src: ``, Err: pipast.ErrNoEntry},
	}
	for _, tc := range tcs {
		_, err := Parse(tc.Src)
		require.Error(t, err, tc.Src)
		if tc.Err != nil {
			require.ErrorIs(t, err, tc.Err, tc.Src)
		}
	}
}

func TestFieldNames(t *testing.T) {
	t.Parallel()
	names := FieldNames()
	require.Len(t, names, 8)
	require.Equal(t, "eth.dst", names[0])
	for _, name := range names {
		f, ok := NamedField(name)
		require.True(t, ok)
		name2, ok := fieldName(f)
		require.True(t, ok)
		require.Equal(t, name, name2)
	}
}
