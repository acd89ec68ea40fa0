package pipeval

import (
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"pipdataplane.org/pip/internal/testutil"
	"pipdataplane.org/pip/pipast"
)

func TestRunBatch(t *testing.T) {
	t.Parallel()
	ctx := testutil.Context(t)
	cfg := DefaultConfig()
	cfg.Parallelism = 4
	cfg.Metrics = NewMetrics(prometheus.NewRegistry())
	// the key is the first byte, the output port is the key
	ev := newEvaluator(t, cfg, table("t",
		[]pipast.Action{
			copyBits(pipast.Field(pipast.SpacePacket, 0, 8), pipast.Field(pipast.SpaceKey, 0, 8), 8),
			pipast.Match{},
		},
		rule(1, output(1)),
		rule(2, output(2)),
		rule(3, copyBits(pipast.Field(pipast.SpaceMeta, 0, 8), pipast.Field(pipast.SpacePacket, 8, 8), 8), output(3)),
		missRule(pipast.Drop{}),
	))
	var pkts []Packet
	for i := 0; i < 100; i++ {
		pkts = append(pkts, Packet{Data: []byte{byte(i % 4)}})
	}
	var order []int
	err := RunBatch(ctx, ev, pkts, func(i int, res Result, err error) error {
		order = append(order, i)
		switch i % 4 {
		case 0:
			require.NoError(t, err)
			require.Equal(t, VerdictDrop, res.Verdict)
		case 3:
			// the packet is a single byte
			require.Error(t, err)
			require.Equal(t, "field", FaultKind(err))
		default:
			require.NoError(t, err)
			require.Equal(t, uint32(i%4), res.Port)
		}
		return nil
	})
	require.NoError(t, err)
	require.Len(t, order, len(pkts))
	for i := range order {
		require.Equal(t, i, order[i])
	}

	m := cfg.Metrics
	require.Equal(t, 50.0, promtest.ToFloat64(m.Verdicts.WithLabelValues("drop")))
	require.Equal(t, 50.0, promtest.ToFloat64(m.Verdicts.WithLabelValues("output")))
	require.Equal(t, 25.0, promtest.ToFloat64(m.Faults.WithLabelValues("field")))
}

func TestRunBatchStructural(t *testing.T) {
	t.Parallel()
	ctx := testutil.Context(t)
	cfg := DefaultConfig()
	cfg.Parallelism = 2
	// key 2 keeps the packet busy before it is output
	var slow []pipast.Action
	for i := 0; i < 60_000; i++ {
		slow = append(slow, pipast.Advance{Amount: pipast.Lit(0)})
	}
	slow = append(slow, output(1))
	ev := newEvaluator(t, cfg,
		table("t0", []pipast.Action{
			copyBits(pipast.Field(pipast.SpacePacket, 0, 8), pipast.Field(pipast.SpaceKey, 0, 8), 8),
			pipast.Match{},
		},
			rule(1, pipast.Write{Action: gotoTable("t1")}, pipast.Write{Action: output(1)}),
			rule(2, slow...),
			missRule(output(2)),
		),
		table("t1", nil, missRule(output(3))),
	)
	type testCase struct {
		In   []byte
		Seen []int
	}
	tcs := []testCase{
		{In: []byte{0, 0, 1, 0}, Seen: []int{0, 1, 2}},
		{In: []byte{2, 1}, Seen: []int{0, 1}},
		{In: []byte{0, 2, 2, 1, 2, 0, 0, 0}, Seen: []int{0, 1, 2, 3}},
	}
	for i, tc := range tcs {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			for trial := 0; trial < 10; trial++ {
				var pkts []Packet
				for _, b := range tc.In {
					pkts = append(pkts, Packet{Data: []byte{b}})
				}
				var seen []int
				err := RunBatch(ctx, ev, pkts, func(i int, res Result, err error) error {
					seen = append(seen, i)
					if i < len(tc.Seen)-1 {
						require.NoError(t, err)
						require.Equal(t, VerdictOutput, res.Verdict)
						if tc.In[i] == 2 {
							require.Equal(t, uint32(1), res.Port)
						}
					}
					return nil
				})
				var serr StructuralError
				require.ErrorAs(t, err, &serr)
				require.Equal(t, CodeGotoPending, serr.Code)
				require.Equal(t, tc.Seen, seen)
			}
		})
	}
}
