package e2etest

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"pipdataplane.org/pip/internal/dbutil"
	"pipdataplane.org/pip/internal/testutil"
	"pipdataplane.org/pip/pipcap"
	"pipdataplane.org/pip/pipeval"
	"pipdataplane.org/pip/pipstore"
)

// forward sends ssh to port 1, rewrites http to 8080 and sends it to port 2,
// and gives up on packets from port 9999 by copying into a read only register.
const forwardSrc = `(program (entry tcp)
  (table tcp exact (prep (copy tcp.dst (key 0 16) 16) match)
    (rule 22 (output 1))
    (rule 80 (set tcp.dst 8080) (goto egress))
    (rule miss (goto bysrc)))
  (table bysrc exact (prep (copy tcp.src (key 0 16) 16) match)
    (rule 9999 (copy tcp.src (phys_port 0 16) 16))
    (rule miss drop))
  (table egress exact (prep (output 2))))`

// TestCaptureToStore stores a program, runs a capture through it and records every run.
func TestCaptureToStore(t *testing.T) {
	ctx := testutil.Context(t)
	db := dbutil.NewTestDB(t)
	require.NoError(t, pipstore.SetupDB(ctx, db))
	store := pipstore.New(db)
	id, err := store.PutProgram(ctx, "forward", forwardSrc)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	cfg := pipeval.DefaultConfig()
	cfg.Metrics = pipeval.NewMetrics(reg)
	cfg.Parallelism = 4
	ev, err := store.Evaluator(ctx, id, cfg)
	require.NoError(t, err)

	// write a capture
	dsts := []uint16{22, 80, 443, 22, 80, 443}
	start := time.Unix(1700000000, 0)
	var capBuf bytes.Buffer
	w, err := pipcap.NewWriter(&capBuf)
	require.NoError(t, err)
	for i, dst := range dsts {
		src := uint16(40000 + i)
		if i == 5 {
			src = 9999
		}
		require.NoError(t, w.Write(start.Add(time.Duration(i)*time.Millisecond), tcpFrame(t, src, dst)))
	}

	r, err := pipcap.NewReader(bytes.NewReader(capBuf.Bytes()), pipcap.RoundRobin(2))
	require.NoError(t, err)
	pkts, err := pipcap.ReadAll(r)
	require.NoError(t, err)
	require.Len(t, pkts, len(dsts))

	var outBuf bytes.Buffer
	out, err := pipcap.NewWriter(&outBuf)
	require.NoError(t, err)
	err = pipeval.RunBatch(ctx, ev, pkts, func(i int, res pipeval.Result, evalErr error) error {
		if _, err := store.RecordRun(ctx, id, pkts[i], res, evalErr); err != nil {
			return err
		}
		return out.WriteResult(pkts[i], res)
	})
	require.NoError(t, err)

	runs, err := store.ListRuns(ctx, id, 0)
	require.NoError(t, err)
	require.Len(t, runs, len(dsts))
	type want struct {
		Verdict pipeval.Verdict
		Port    uint32
		Fault   bool
	}
	wants := []want{
		{Verdict: pipeval.VerdictOutput, Port: 1},
		{Verdict: pipeval.VerdictOutput, Port: 2},
		{Verdict: pipeval.VerdictDrop},
		{Verdict: pipeval.VerdictOutput, Port: 1},
		{Verdict: pipeval.VerdictOutput, Port: 2},
		{Verdict: pipeval.VerdictDrop, Fault: true},
	}
	for i, run := range runs {
		require.Equal(t, wants[i], want{Verdict: run.Verdict, Port: run.Port, Fault: run.Fault != ""}, "run %d", i)
		require.Equal(t, uint32(i%2+1), run.PhysPort)
		require.True(t, pkts[i].Arrival.Equal(run.Arrival))
	}

	// the forwarded packets were written in order, with http rewritten
	or, err := pipcap.NewReader(bytes.NewReader(outBuf.Bytes()), nil)
	require.NoError(t, err)
	fwd, err := pipcap.ReadAll(or)
	require.NoError(t, err)
	require.Len(t, fwd, 4)
	var gotDsts []uint16
	for _, pkt := range fwd {
		h, err := pipcap.Decode(pkt.Data)
		require.NoError(t, err)
		gotDsts = append(gotDsts, h.TCPDst)
	}
	require.Equal(t, []uint16{22, 8080, 22, 8080}, gotDsts)

	require.Equal(t, 4.0, promtest.ToFloat64(cfg.Metrics.Verdicts.WithLabelValues("output")))
	require.Equal(t, 2.0, promtest.ToFloat64(cfg.Metrics.Verdicts.WithLabelValues("drop")))
	require.Equal(t, 1.0, promtest.ToFloat64(cfg.Metrics.Faults.WithLabelValues("field")))
}

func tcpFrame(t testing.TB, src, dst uint16) []byte {
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 1},
		DstMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 2},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    net.IPv4(10, 0, 0, 1),
		DstIP:    net.IPv4(10, 0, 0, 2),
	}
	tcp := &layers.TCP{SrcPort: layers.TCPPort(src), DstPort: layers.TCPPort(dst), ACK: true, Window: 1024}
	require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, tcp, gopacket.Payload("e2e")))
	return buf.Bytes()
}
