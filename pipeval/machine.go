package pipeval

import (
	"context"
	"fmt"
	"math"
	"slices"

	"go.brendoncarroll.net/stdctx/logctx"
	"go.uber.org/zap"

	"pipdataplane.org/pip/internal/bitbuf"
	"pipdataplane.org/pip/internal/ringbuf"
	"pipdataplane.org/pip/pipast"
	"pipdataplane.org/pip/piptable"
)

// Phase is the state of a machine.
type Phase uint8

const (
	// PhaseKeyPrep runs the key preparation actions of the active table.
	PhaseKeyPrep Phase = iota
	// PhaseMatch looks up the key in the active table.
	PhaseMatch
	// PhaseActionExec runs the actions of the matched rule.
	PhaseActionExec
	// PhaseEgress runs the deferred actions.
	PhaseEgress
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseKeyPrep:
		return "key-prep"
	case PhaseMatch:
		return "match"
	case PhaseActionExec:
		return "action-exec"
	case PhaseEgress:
		return "egress"
	case PhaseDone:
		return "done"
	default:
		return fmt.Sprintf("Phase(%d)", uint8(p))
	}
}

// ctxCheckInterval is the number of steps between checks for cancellation.
const ctxCheckInterval = 256

// maxCursor bounds the decode cursor so it cannot overflow.
const maxCursor = math.MaxInt32

// machine holds the state for evaluating a single packet.
type machine struct {
	ev *Evaluator

	// buf is the working copy of the packet.
	buf []byte
	// cursor is the decode cursor in bits.
	cursor   int
	key      uint64
	meta     uint64
	inPort   uint32
	physPort uint32

	table    pipast.TableRef
	pending  ringbuf.RingBuf[pipast.Action]
	deferred []pipast.Action
	phase    Phase

	verdict   Verdict
	port      uint32
	hasOutput bool
	dropped   bool
	reason    string

	steps int
	err   error
}

func newMachine(ev *Evaluator, pkt Packet) *machine {
	m := &machine{
		ev: ev,

		buf:      slices.Clone(pkt.Data),
		key:      pkt.Key,
		meta:     pkt.Meta,
		inPort:   pkt.InPort,
		physPort: pkt.PhysPort,

		pending: ringbuf.New[pipast.Action](8),
	}
	if m.buf == nil {
		m.buf = []byte{}
	}
	m.enter(ev.entry)
	return m
}

// enter makes ref the active table and queues its key preparation actions.
func (m *machine) enter(ref pipast.TableRef) {
	m.table = ref
	m.phase = PhaseKeyPrep
	m.pending.Extend(m.activeTable().Prep()...)
}

func (m *machine) activeTable() *piptable.Table {
	return m.ev.tables[m.table.Index]
}

func (m *machine) isAlive() bool {
	if m.err != nil || m.dropped {
		return false
	}
	return m.pending.Len() > 0 || len(m.deferred) > 0 || m.phase == PhaseKeyPrep
}

// run executes actions until the packet is done or faults.
func (m *machine) run(ctx context.Context) {
	for m.isAlive() {
		if m.steps >= m.ev.cfg.MaxSteps {
			m.fail(StructuralError{
				Code:  CodeStepBudget,
				Table: m.activeTable().Name(),
				Msg:   fmt.Sprintf("exceeded %d steps", m.ev.cfg.MaxSteps),
			})
			break
		}
		if m.steps%ctxCheckInterval == 0 && ctx.Err() != nil {
			m.fail(ctx.Err())
			break
		}
		if m.pending.Len() == 0 && m.phase == PhaseKeyPrep {
			// key preparation ended without a terminator, the key is looked up as prepared.
			m.match(ctx)
			continue
		}
		if m.pending.Len() == 0 {
			// the ingress actions are exhausted, the deferred actions become the pending queue.
			m.pending.Extend(m.deferred...)
			m.deferred = nil
			m.phase = PhaseEgress
		}
		a := m.pending.PopFront()
		m.steps++
		logctx.Debug(ctx, "exec",
			zap.Stringer("action", a),
			zap.Stringer("phase", m.phase),
			zap.String("table", m.activeTable().Name()),
			zap.Uint64("key", m.key),
			zap.Int("cursor", m.cursor),
		)
		m.step(ctx, a)
	}
	m.phase = PhaseDone
}

func (m *machine) step(ctx context.Context, a pipast.Action) {
	switch a := a.(type) {
	case pipast.Advance:
		m.advance(a)
	case pipast.Copy:
		m.copy(a)
	case pipast.Set:
		m.set(a)
	case pipast.Write:
		m.deferred = append(m.deferred, a.Action)
	case pipast.Clear:
		m.pending.Clear()
	case pipast.Drop:
		m.drop(ReasonDropAction)
	case pipast.Match:
		m.match(ctx)
	case pipast.Goto:
		m.gotoTable(ctx, a)
	case pipast.Output:
		m.output(a)
	default:
		m.fail(StructuralError{
			Code:  CodeBadAction,
			Table: m.activeTable().Name(),
			Msg:   fmt.Sprintf("cannot execute %T", a),
		})
	}
}

func (m *machine) fail(err error) {
	m.pending.Clear()
	m.deferred = nil
	m.err = err
}

func (m *machine) fieldErr(a pipast.Action, code string, format string, args ...any) {
	m.fail(FieldError{
		Action: a.String(),
		Code:   code,
		Msg:    fmt.Sprintf(format, args...),
	})
}

func (m *machine) advance(a pipast.Advance) {
	n, ok := literal(a.Amount)
	if !ok {
		m.fieldErr(a, CodeBadOperand, "amount %v is not a literal", a.Amount)
		return
	}
	if n > uint64(maxCursor-m.cursor) {
		m.cursor = maxCursor
		return
	}
	m.cursor += int(n)
}

func (m *machine) set(a pipast.Set) {
	loc, err := m.locate(a.Field)
	if err != nil {
		m.fieldErr(a, CodeBadOperand, "%v", err)
		return
	}
	val, ok := a.Value.(pipast.IntExpr)
	if !ok {
		m.fieldErr(a, CodeBadOperand, "value %v is not a literal", a.Value)
		return
	}
	if val.Width > bitbuf.RegisterBits {
		m.fieldErr(a, CodeTooWide, "value is %d bits", val.Width)
		return
	}
	if loc.n != 0 && loc.n != val.Width {
		m.fieldErr(a, CodeWidthMismatch, "field is %d bits, value is %d bits", loc.n, val.Width)
		return
	}
	if loc.space != pipast.SpacePacket && loc.space != pipast.SpaceHeader {
		m.fieldErr(a, CodeBadSpace, "cannot set %v", loc.space)
		return
	}
	view, err := m.view(loc.space)
	if err != nil {
		m.fieldErr(a, CodeOutOfBounds, "%v", err)
		return
	}
	if err := view.PutUint(loc.pos, val.Width, val.Value); err != nil {
		m.fieldErr(a, CodeOutOfBounds, "%v", err)
	}
}

func (m *machine) drop(reason string) {
	m.pending.Clear()
	m.deferred = nil
	m.dropped = true
	m.reason = reason
}

func (m *machine) match(ctx context.Context) {
	m.phase = PhaseMatch
	t := m.activeTable()
	i, ok := t.Match(m.key)
	if ok {
		logctx.Debug(ctx, "matched", zap.String("table", t.Name()), zap.Int("rule", i), zap.Uint64("key", m.key))
		m.pending.Extend(t.Rule(i).Actions...)
		m.phase = PhaseActionExec
		return
	}
	logctx.Debug(ctx, "miss", zap.String("table", t.Name()), zap.Uint64("key", m.key))
	switch m.ev.cfg.OnMiss {
	case MissDrop:
		m.drop(ReasonNoMatch)
	case MissError:
		m.fieldErr(pipast.Match{}, CodeNoMatch, "no rule in table %q matches key %#x", t.Name(), m.key)
	}
}

func (m *machine) gotoTable(ctx context.Context, a pipast.Goto) {
	if m.pending.Len() > 0 {
		m.fail(StructuralError{
			Code:  CodeGotoPending,
			Table: m.activeTable().Name(),
			Msg:   fmt.Sprintf("%v with %d actions pending", a, m.pending.Len()),
		})
		return
	}
	ref, ok := a.Dest.(pipast.TableRef)
	if !ok || ref.Index < 0 || ref.Index >= len(m.ev.tables) {
		m.fail(StructuralError{
			Code:  CodeNoTable,
			Table: m.activeTable().Name(),
			Msg:   fmt.Sprintf("%v does not refer to a table", a.Dest),
		})
		return
	}
	logctx.Debug(ctx, "goto", zap.String("from", m.activeTable().Name()), zap.String("to", m.ev.tables[ref.Index].Name()))
	m.enter(ref)
}

func (m *machine) output(a pipast.Output) {
	switch a.Port.Reserved {
	case pipast.PortNumbered:
		n, ok := literal(a.Port.Num)
		if !ok || n > math.MaxUint32 {
			m.fieldErr(a, CodeBadOperand, "port %v", a.Port.Num)
			return
		}
		m.verdict, m.port = VerdictOutput, uint32(n)
	case pipast.PortInPort:
		m.verdict, m.port = VerdictOutput, m.physPort
	case pipast.PortController:
		m.verdict, m.port = VerdictController, a.Port.Reserved.Number()
	case pipast.PortAll, pipast.PortFlood, pipast.PortLocal:
		m.verdict, m.port = VerdictOutput, a.Port.Reserved.Number()
	default:
		m.fieldErr(a, CodeBadOperand, "port %v", a.Port)
		return
	}
	m.hasOutput = true
}

func (m *machine) result() Result {
	res := Result{
		Output: m.buf,
		Steps:  m.steps,
		Key:    m.key,
		Meta:   m.meta,
	}
	switch {
	case m.err != nil:
		res.Verdict, res.Reason = VerdictDrop, ReasonFault
	case m.dropped:
		res.Verdict, res.Reason = VerdictDrop, m.reason
	case !m.hasOutput:
		res.Verdict, res.Reason = VerdictDrop, ReasonNoOutput
	default:
		res.Verdict, res.Port = m.verdict, m.port
	}
	return res
}

func literal(x pipast.Expr) (uint64, bool) {
	lit, ok := x.(pipast.IntExpr)
	return lit.Value, ok
}
