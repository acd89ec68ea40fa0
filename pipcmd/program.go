package pipcmd

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.brendoncarroll.net/star"
	"go.brendoncarroll.net/stdctx/logctx"

	"pipdataplane.org/pip/pipcap"
	"pipdataplane.org/pip/pipeval"
	"pipdataplane.org/pip/pipsrc"
)

var check = star.Command{
	Metadata: star.Metadata{
		Short: "parse and validate a program",
	},
	Flags: []star.IParam{programParam},
	F: func(c star.Context) error {
		prog := programParam.Load(c)
		c.Printf("ok: %d tables, entry %s\n", len(prog.Tables()), prog.Entry)
		return nil
	},
}

var fmtCmd = star.Command{
	Metadata: star.Metadata{
		Short: "print a program in canonical form",
	},
	Flags: []star.IParam{programParam},
	F: func(c star.Context) error {
		out, err := pipsrc.Format(programParam.Load(c))
		if err != nil {
			return err
		}
		_, err = io.WriteString(c.StdOut, out)
		return err
	},
}

var packetParam = star.Param[[]byte]{
	Name:  "packet",
	Parse: ParseHexPacket,
}

// ParseHexPacket decodes a packet written in hex.
// Whitespace, colons and a 0x prefix are ignored.
func ParseHexPacket(x string) ([]byte, error) {
	x = strings.TrimPrefix(x, "0x")
	x = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', ':':
			return -1
		}
		return r
	}, x)
	return hex.DecodeString(x)
}

var inPortParam = star.Param[uint32]{
	Name:    "in-port",
	Default: star.Ptr("0"),
	Parse:   parseUint32,
}

var physPortParam = star.Param[uint32]{
	Name:    "phys-port",
	Default: star.Ptr("0"),
	Parse:   parseUint32,
}

var eval = star.Command{
	Metadata: star.Metadata{
		Short: "evaluate a program on one packet, given in hex",
	},
	Flags: []star.IParam{programParam, maxStepsParam, onMissParam, inPortParam, physPortParam},
	Pos:   []star.IParam{packetParam},
	F: func(c star.Context) error {
		ev, err := pipeval.New(programParam.Load(c), BuildConfig(c))
		if err != nil {
			return err
		}
		pkt := pipeval.Packet{
			Data:     packetParam.Load(c),
			Arrival:  time.Now(),
			InPort:   inPortParam.Load(c),
			PhysPort: physPortParam.Load(c),
		}
		res, err := ev.Eval(cmdContext(c), pkt)
		c.Printf("%s\n", FormatResult(res, err))
		c.Printf("%s", hex.Dump(res.Output))
		return nil
	},
}

// FormatResult describes the outcome of an evaluation on one line.
func FormatResult(res pipeval.Result, err error) string {
	var sb strings.Builder
	sb.WriteString(res.Verdict.String())
	switch res.Verdict {
	case pipeval.VerdictDrop:
		fmt.Fprintf(&sb, " (%s)", res.Reason)
	default:
		fmt.Fprintf(&sb, " port=%d", res.Port)
	}
	fmt.Fprintf(&sb, " steps=%d key=%#x meta=%#x", res.Steps, res.Key, res.Meta)
	if err != nil {
		fmt.Fprintf(&sb, " fault: %v", err)
	}
	return sb.String()
}

// Summary counts the outcomes of a batch.
type Summary struct {
	Packets    int
	Output     int
	Controller int
	Dropped    int
	Faults     int
}

func (s *Summary) Add(res pipeval.Result, err error) {
	s.Packets++
	switch res.Verdict {
	case pipeval.VerdictOutput:
		s.Output++
	case pipeval.VerdictController:
		s.Controller++
	default:
		s.Dropped++
	}
	if err != nil {
		s.Faults++
	}
}

func (s Summary) String() string {
	return fmt.Sprintf("packets=%d output=%d controller=%d dropped=%d faults=%d",
		s.Packets, s.Output, s.Controller, s.Dropped, s.Faults)
}

var pcapCmd = star.Command{
	Metadata: star.Metadata{
		Short: "evaluate a program on every packet in a pcap file, writing forwarded packets to another",
	},
	Flags: []star.IParam{programParam, fileParam, outputFileParam,
		maxStepsParam, onMissParam, portsParam, seedParam,
	},
	F: func(c star.Context) (retErr error) {
		ctx := cmdContext(c)
		in := fileParam.Load(c)
		defer in.Close()
		out := outputFileParam.Load(c)
		defer func() { retErr = errors.Join(retErr, out.Close()) }()

		ev, err := pipeval.New(programParam.Load(c), BuildConfig(c))
		if err != nil {
			return err
		}
		sum, err := RunCapture(ctx, ev, in, out, BuildPortAssigner(c))
		if err != nil {
			return err
		}
		c.Printf("%v\n", sum)
		return nil
	},
}

// RunCapture evaluates every packet of the capture in and writes the forwarded packets to out.
// When the batch stops early, the packets evaluated before the failure are still written.
func RunCapture(ctx context.Context, ev *pipeval.Evaluator, in io.Reader, out io.Writer, assign pipcap.PortAssigner) (Summary, error) {
	var sum Summary
	r, err := pipcap.NewReader(in, assign)
	if err != nil {
		return sum, err
	}
	pkts, err := pipcap.ReadAll(r)
	if err != nil {
		return sum, err
	}
	logctx.Infof(ctx, "read %d packets", len(pkts))
	w, err := pipcap.NewWriter(out)
	if err != nil {
		return sum, err
	}
	err = pipeval.RunBatch(ctx, ev, pkts, func(i int, res pipeval.Result, err error) error {
		sum.Add(res, err)
		return w.WriteResult(pkts[i], res)
	})
	return sum, err
}
