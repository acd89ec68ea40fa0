// package pipcmd implements the pip command line tool.
package pipcmd

import (
	"context"
	"net"
	"os"
	"strconv"

	"github.com/jmoiron/sqlx"
	"go.brendoncarroll.net/star"
	"go.brendoncarroll.net/stdctx/logctx"
	"go.uber.org/zap"

	"pipdataplane.org/pip/pipast"
	"pipdataplane.org/pip/pipcap"
	"pipdataplane.org/pip/pipeval"
	"pipdataplane.org/pip/pipsrc"
	"pipdataplane.org/pip/pipstore"
)

func Root() star.Command {
	return root
}

var root = star.NewDir(star.Metadata{
	Short: "Packet Interpretation Pipeline",
}, map[star.Symbol]star.Command{
	// program files
	"check": check,
	"fmt":   fmtCmd,
	"eval":  eval,
	"pcap":  pcapCmd,

	// stored programs
	"put":   put,
	"list":  list,
	"runs":  runs,
	"serve": serve,
})

var DBParam = star.Param[*sqlx.DB]{
	Name:    "db",
	Default: star.Ptr(":memory:"),
	Parse: func(x string) (*sqlx.DB, error) {
		db, err := pipstore.OpenDB(x)
		if err != nil {
			return nil, err
		}
		if err := pipstore.SetupDB(context.Background(), db); err != nil {
			return nil, err
		}
		return db, nil
	},
}

var ListenerParam = star.Param[net.Listener]{
	Name:    "l",
	Default: star.Ptr("127.0.0.1:6633"),
	Parse: func(x string) (net.Listener, error) {
		return net.Listen("tcp", x)
	},
}

var maxStepsParam = star.Param[int]{
	Name:    "max-steps",
	Default: star.Ptr(strconv.Itoa(pipeval.DefaultConfig().MaxSteps)),
	Parse:   strconv.Atoi,
}

var onMissParam = star.Param[pipeval.MissPolicy]{
	Name:    "on-miss",
	Default: star.Ptr(pipeval.MissContinue.String()),
	Parse:   pipeval.ParseMissPolicy,
}

// BuildConfig returns the evaluator config set by the flags.
func BuildConfig(c star.Context) pipeval.Config {
	cfg := pipeval.DefaultConfig()
	cfg.MaxSteps = maxStepsParam.Load(c)
	cfg.OnMiss = onMissParam.Load(c)
	return cfg
}

var portsParam = star.Param[uint32]{
	Name:    "ports",
	Default: star.Ptr("1"),
	Parse:   parseUint32,
}

var seedParam = star.Param[int64]{
	Name:    "seed",
	Default: star.Ptr("0"),
	Parse: func(x string) (int64, error) {
		return strconv.ParseInt(x, 10, 64)
	},
}

// BuildPortAssigner assigns physical ports round robin, or at random if a seed is set.
func BuildPortAssigner(c star.Context) pipcap.PortAssigner {
	n := portsParam.Load(c)
	if seed := seedParam.Load(c); seed != 0 {
		return pipcap.RandomPorts(n, seed)
	}
	return pipcap.RoundRobin(n)
}

func parseUint32(x string) (uint32, error) {
	n, err := strconv.ParseUint(x, 0, 32)
	return uint32(n), err
}

// programParam is a program source file, which is parsed and validated.
var programParam = star.Param[*pipast.Program]{
	Name:  "p",
	Parse: LoadProgramFile,
}

func LoadProgramFile(p string) (*pipast.Program, error) {
	src, err := os.ReadFile(p)
	if err != nil {
		return nil, err
	}
	return pipsrc.Parse(string(src))
}

// sourceParam is a program source file, as text.
var sourceParam = star.Param[string]{
	Name: "p",
	Parse: func(x string) (string, error) {
		data, err := os.ReadFile(x)
		return string(data), err
	},
}

var fileParam = star.Param[*os.File]{
	Name: "i",
	Parse: func(x string) (*os.File, error) {
		return os.Open(x)
	},
}

var outputFileParam = star.Param[*os.File]{
	Name:  "o",
	Parse: os.Create,
}

// cmdContext returns the command's context with a production logger installed.
func cmdContext(c star.Context) context.Context {
	l, err := zap.NewProduction()
	if err != nil {
		return c.Context
	}
	return logctx.NewContext(c.Context, l)
}
