package pipcmd

import (
	"strconv"

	"go.brendoncarroll.net/star"

	"pipdataplane.org/pip/pipeval"
	"pipdataplane.org/pip/pipstore"
)

var nameParam = star.Param[string]{
	Name:    "name",
	Default: star.Ptr(""),
	Parse:   star.ParseString,
}

var put = star.Command{
	Metadata: star.Metadata{
		Short: "validate a program and add it to the database",
		Tags:  []string{"store"},
	},
	Flags: []star.IParam{DBParam, sourceParam, nameParam},
	F: func(c star.Context) error {
		s := pipstore.New(DBParam.Load(c))
		id, err := s.PutProgram(cmdContext(c), nameParam.Load(c), sourceParam.Load(c))
		if err != nil {
			return err
		}
		c.Printf("%v\n", id)
		return nil
	},
}

var list = star.Command{
	Metadata: star.Metadata{
		Short: "list the programs in the database",
		Tags:  []string{"store"},
	},
	Flags: []star.IParam{DBParam},
	F: func(c star.Context) error {
		s := pipstore.New(DBParam.Load(c))
		ps, err := s.ListPrograms(cmdContext(c))
		if err != nil {
			return err
		}
		c.Printf("%-43s %-20s %s\n", "ID", "NAME", "CREATED")
		for _, p := range ps {
			c.Printf("%-43v %-20s %s\n", p.ID, p.Name, p.CreatedAt.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

// progRefParam names a stored program by name or ID.
var progRefParam = star.Param[string]{
	Name:  "prog",
	Parse: star.ParseString,
}

var limitParam = star.Param[int]{
	Name:    "limit",
	Default: star.Ptr("20"),
	Parse:   strconv.Atoi,
}

var runs = star.Command{
	Metadata: star.Metadata{
		Short: "list the most recent runs of a stored program",
		Tags:  []string{"store"},
	},
	Flags: []star.IParam{DBParam, limitParam},
	Pos:   []star.IParam{progRefParam},
	F: func(c star.Context) error {
		ctx := cmdContext(c)
		s := pipstore.New(DBParam.Load(c))
		id, err := s.Resolve(ctx, progRefParam.Load(c))
		if err != nil {
			return err
		}
		rs, err := s.ListRuns(ctx, id, limitParam.Load(c))
		if err != nil {
			return err
		}
		c.Printf("%-6s %-8s %-8s %-10s %-6s %s\n", "RUN", "IN", "PHYS", "VERDICT", "STEPS", "FAULT")
		for _, r := range rs {
			verdict := r.Verdict.String()
			if r.Verdict != pipeval.VerdictDrop {
				verdict += ":" + strconv.FormatUint(uint64(r.Port), 10)
			}
			c.Printf("%-6d %-8d %-8d %-10s %-6d %s\n", r.ID, r.InPort, r.PhysPort, verdict, r.Steps, r.Fault)
		}
		return nil
	},
}
