// Package pipeval evaluates pip programs against packets.
package pipeval

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"go.brendoncarroll.net/stdctx/logctx"
	"go.uber.org/zap"

	"pipdataplane.org/pip/pipast"
	"pipdataplane.org/pip/piptable"
)

// Packet is the input to an evaluation.
type Packet struct {
	Data    []byte
	Arrival time.Time
	// InPort is the port the packet logically arrived on.
	InPort uint32
	// PhysPort is the port the packet was physically received on.
	PhysPort uint32

	// Key and Meta are the initial values of the key and metadata registers.
	Key  uint64
	Meta uint64
}

type Verdict uint8

const (
	VerdictDrop Verdict = iota
	VerdictOutput
	VerdictController
)

func (v Verdict) String() string {
	switch v {
	case VerdictDrop:
		return "drop"
	case VerdictOutput:
		return "output"
	case VerdictController:
		return "controller"
	default:
		return fmt.Sprintf("Verdict(%d)", uint8(v))
	}
}

func ParseVerdict(x string) (Verdict, error) {
	for v := VerdictDrop; v <= VerdictController; v++ {
		if v.String() == x {
			return v, nil
		}
	}
	return 0, fmt.Errorf("unknown verdict %q", x)
}

// Reasons for a drop verdict
const (
	ReasonDropAction = "drop"
	ReasonNoOutput   = "no output"
	ReasonNoMatch    = "no match"
	ReasonFault      = "fault"
)

// Result is the outcome of evaluating a packet.
type Result struct {
	Verdict Verdict
	// Port is the egress port when Verdict is VerdictOutput or VerdictController.
	Port uint32
	// Reason is set when Verdict is VerdictDrop.
	Reason string
	// Output is the working copy of the packet.
	Output []byte
	Steps  int

	Key  uint64
	Meta uint64
}

type MissPolicy uint8

const (
	// MissContinue appends nothing to the pending queue and carries on.
	MissContinue MissPolicy = iota
	// MissDrop drops the packet.
	MissDrop
	// MissError aborts the packet with a FieldError.
	MissError
)

func (p MissPolicy) String() string {
	switch p {
	case MissContinue:
		return "continue"
	case MissDrop:
		return "drop"
	case MissError:
		return "error"
	default:
		return fmt.Sprintf("MissPolicy(%d)", uint8(p))
	}
}

func ParseMissPolicy(x string) (MissPolicy, error) {
	for p := MissContinue; p <= MissError; p++ {
		if p.String() == x {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown miss policy %q", x)
}

type Config struct {
	// MaxSteps is the number of actions a single packet may execute.
	MaxSteps int
	OnMiss   MissPolicy
	// Parallelism is the number of packets RunBatch evaluates at once.
	Parallelism int
	// Metrics is optional.
	Metrics *Metrics
}

func DefaultConfig() Config {
	return Config{
		MaxSteps:    1 << 16,
		OnMiss:      MissContinue,
		Parallelism: runtime.GOMAXPROCS(0),
	}
}

// Evaluator runs a program against packets.
// It is safe for concurrent use.
type Evaluator struct {
	prog   *pipast.Program
	tables []*piptable.Table
	entry  pipast.TableRef
	cfg    Config
}

// New validates prog and builds the index for every table.
// prog must be resolved, see pipast.Load.
func New(prog *pipast.Program, cfg Config) (*Evaluator, error) {
	if err := pipast.Validate(prog); err != nil {
		return nil, err
	}
	entry, err := prog.EntryRef()
	if err != nil {
		return nil, err
	}
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = DefaultConfig().MaxSteps
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = DefaultConfig().Parallelism
	}
	return &Evaluator{
		prog:   prog,
		tables: piptable.BuildAll(prog),
		entry:  entry,
		cfg:    cfg,
	}, nil
}

func (e *Evaluator) Program() *pipast.Program {
	return e.prog
}

func (e *Evaluator) Config() Config {
	return e.cfg
}

// Eval runs the program on pkt.
// pkt.Data is never modified.
//
// If the packet faults, the Result has VerdictDrop and the output buffer as it was at the fault,
// and the error is a FieldError or a StructuralError.
func (e *Evaluator) Eval(ctx context.Context, pkt Packet) (Result, error) {
	m := newMachine(e, pkt)
	m.run(ctx)
	res := m.result()
	if e.cfg.Metrics != nil {
		e.cfg.Metrics.Observe(res, m.err)
	}
	if m.err != nil {
		return res, m.err
	}
	logctx.Debug(ctx, "verdict",
		zap.Stringer("verdict", res.Verdict),
		zap.Uint64("port", uint64(res.Port)),
		zap.String("reason", res.Reason),
		zap.Int("steps", res.Steps),
	)
	return res, nil
}
