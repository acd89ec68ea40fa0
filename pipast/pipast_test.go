package pipast

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func exactTable(name string, rules ...Rule) *TableDecl {
	return &TableDecl{
		Name:  name,
		Kind:  MatchExact,
		Prep:  []Action{Advance{Amount: Lit(0)}, Match{}},
		Rules: rules,
	}
}

func exactRule(key uint64, actions ...Action) Rule {
	return Rule{Kind: MatchExact, Key: IntN(64, key), Actions: actions}
}

func TestResolve(t *testing.T) {
	t.Parallel()
	p := &Program{Decls: []Decl{
		exactTable("t0", exactRule(1, Write{Action: Goto{Dest: RefExpr{Name: "t1"}}}, Goto{Dest: RefExpr{Name: "t1"}})),
		&MeterDecl{Name: "m0"},
		exactTable("t1", exactRule(1, Output{Port: Port(1)})),
	}}
	p2, err := Resolve(p)
	require.NoError(t, err)
	rule := p2.Tables()[0].Rules[0]
	require.Equal(t, Write{Action: Goto{Dest: TableRef{Index: 1}}}, rule.Actions[0])
	require.Equal(t, Goto{Dest: TableRef{Index: 1}}, rule.Actions[1])
	// the input is not modified
	require.Equal(t, Goto{Dest: RefExpr{Name: "t1"}}, p.Tables()[0].Rules[0].Actions[1])

	_, err = Resolve(&Program{Decls: []Decl{
		exactTable("t0", exactRule(1, Goto{Dest: RefExpr{Name: "nope"}})),
	}})
	require.ErrorIs(t, err, ErrUnresolved)
	var lerr LoadError
	require.ErrorAs(t, err, &lerr)
	require.Equal(t, "t0", lerr.Decl)
	require.Equal(t, 0, lerr.Rule)
}

func TestEntryRef(t *testing.T) {
	t.Parallel()
	p := &Program{Decls: []Decl{exactTable("a"), exactTable("b")}}
	ref, err := p.EntryRef()
	require.NoError(t, err)
	require.Equal(t, TableRef{Index: 0}, ref)

	p.Entry = "b"
	ref, err = p.EntryRef()
	require.NoError(t, err)
	require.Equal(t, TableRef{Index: 1}, ref)

	p.Entry = "c"
	_, err = p.EntryRef()
	require.ErrorIs(t, err, ErrNoEntry)

	_, err = (&Program{}).EntryRef()
	require.ErrorIs(t, err, ErrNoEntry)
}

func TestValidate(t *testing.T) {
	t.Parallel()
	type testCase struct {
		Name  string
		Decls []Decl
		Err   error
	}
	tcs := []testCase{
		{
			Name:  "ok",
			Decls: []Decl{exactTable("t", exactRule(7, Output{Port: Port(3)}), Rule{Kind: MatchExact, Key: MissExpr{}})},
		},
		{Name: "empty", Err: ErrNoEntry},
		{
			Name:  "meter",
			Decls: []Decl{exactTable("t"), &MeterDecl{Name: "m"}},
			Err:   ErrUnimplemented,
		},
		{
			Name:  "expr table",
			Decls: []Decl{&TableDecl{Name: "t", Kind: MatchExpr}},
			Err:   ErrUnimplemented,
		},
		{
			Name:  "duplicate",
			Decls: []Decl{exactTable("t"), exactTable("t")},
			Err:   ErrDuplicateTable,
		},
		{
			Name:  "rule kind",
			Decls: []Decl{exactTable("t", Rule{Kind: MatchRange, Key: RangeExpr{Lo: 1, Hi: 2}})},
			Err:   ErrKindMismatch,
		},
		{
			Name:  "key kind",
			Decls: []Decl{exactTable("t", Rule{Kind: MatchExact, Key: RangeExpr{Lo: 1, Hi: 2}})},
			Err:   ErrKindMismatch,
		},
		{
			Name: "prefix mask",
			Decls: []Decl{&TableDecl{Name: "t", Kind: MatchPrefix, Rules: []Rule{
				{Kind: MatchPrefix, Key: WildExpr{Value: 0x100, Mask: 0xf0}},
			}}},
			Err: ErrBadOperand,
		},
		{
			Name: "prefix ok",
			Decls: []Decl{&TableDecl{Name: "t", Kind: MatchPrefix, Rules: []Rule{
				{Kind: MatchPrefix, Key: WildExpr{Value: 0x100, Mask: 0xff}},
			}}},
		},
		{
			Name: "miss not last",
			Decls: []Decl{exactTable("t",
				Rule{Kind: MatchExact, Key: MissExpr{}},
				exactRule(1),
			)},
			Err: ErrMissNotLast,
		},
		{
			Name:  "terminator position",
			Decls: []Decl{exactTable("t", exactRule(1, Drop{}, Output{Port: Port(1)}))},
			Err:   ErrTerminatorPosition,
		},
		{
			Name: "set width",
			Decls: []Decl{exactTable("t", exactRule(1,
				Set{Field: Field(SpacePacket, 0, 8), Value: IntExpr{Value: 1, Width: 65}},
			))},
			Err: ErrBadOperand,
		},
		{
			Name: "set register",
			Decls: []Decl{exactTable("t", exactRule(1,
				Set{Field: Field(SpaceMeta, 0, 8), Value: IntN(8, 1)},
			))},
			Err: ErrBadOperand,
		},
		{
			Name:  "non literal",
			Decls: []Decl{exactTable("t", exactRule(1, Advance{Amount: RefExpr{Name: "x"}}))},
			Err:   ErrBadOperand,
		},
		{
			Name:  "unresolved",
			Decls: []Decl{exactTable("t", exactRule(1, Goto{Dest: RefExpr{Name: "t"}}))},
			Err:   ErrUnresolved,
		},
		{
			Name:  "bad ref",
			Decls: []Decl{exactTable("t", exactRule(1, Goto{Dest: TableRef{Index: 4}}))},
			Err:   ErrUnresolved,
		},
		{
			Name: "write terminator",
			Decls: []Decl{exactTable("t", exactRule(1,
				Write{Action: Output{Port: PortExpr{Reserved: PortController}}},
				Write{Action: Drop{}},
			))},
		},
	}
	for _, tc := range tcs {
		t.Run(tc.Name, func(t *testing.T) {
			err := Validate(&Program{Decls: tc.Decls})
			if tc.Err == nil {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, tc.Err)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()
	p := &Program{Entry: "second", Decls: []Decl{
		exactTable("first", exactRule(1, Goto{Dest: RefExpr{Name: "second"}})),
		exactTable("second", exactRule(1, Output{Port: Port(2)})),
	}}
	p2, err := Load(p)
	require.NoError(t, err)
	ref, err := p2.EntryRef()
	require.NoError(t, err)
	require.Equal(t, 1, ref.Index)
	require.Equal(t, Goto{Dest: TableRef{Index: 1}}, p2.Tables()[0].Rules[0].Actions[0])
}

func TestMatchers(t *testing.T) {
	t.Parallel()
	require.True(t, RangeExpr{Lo: 10, Hi: 20}.Matches(10))
	require.True(t, RangeExpr{Lo: 10, Hi: 20}.Matches(20))
	require.False(t, RangeExpr{Lo: 10, Hi: 20}.Matches(21))
	require.True(t, WildExpr{Value: 0xab00, Mask: 0xff}.Matches(0xab12))
	require.False(t, WildExpr{Value: 0xab00, Mask: 0xff}.Matches(0xac12))
}

func TestNames(t *testing.T) {
	t.Parallel()
	for k := MatchExact; k <= MatchExpr; k++ {
		k2, err := ParseMatchKind(k.String())
		require.NoError(t, err)
		require.Equal(t, k, k2)
	}
	for s := SpacePacket; s <= SpacePhysPort; s++ {
		s2, err := ParseSpace(s.String())
		require.NoError(t, err)
		require.Equal(t, s, s2)
	}
	for rp := PortInPort; rp <= PortLocal; rp++ {
		rp2, err := ParseReservedPort(rp.String())
		require.NoError(t, err)
		require.Equal(t, rp, rp2)
		require.NotZero(t, rp.Number(), fmt.Sprint(rp))
	}
	_, err := ParseReservedPort("")
	require.Error(t, err)
	require.Equal(t, uint32(0xfffffffd), PortController.Number())
	require.True(t, IsTerminator(Match{}))
	require.False(t, IsTerminator(Write{Action: Drop{}}))
	require.Equal(t, "copy(key[0+8], meta[0+8], 8)",
		Copy{Src: Field(SpaceKey, 0, 8), Dst: Field(SpaceMeta, 0, 8), Width: Lit(8)}.String())
}
