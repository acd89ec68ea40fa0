package pipcap

import (
	"fmt"
	"io"
	"math/rand"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"pipdataplane.org/pip/pipeval"
)

// PortAssigner picks the physical port for each packet read.
type PortAssigner func() uint32

// RoundRobin cycles through the ports 1 to n.
func RoundRobin(n uint32) PortAssigner {
	var next uint32
	return func() uint32 {
		if n == 0 {
			return 0
		}
		next = next%n + 1
		return next
	}
}

// RandomPorts picks ports uniformly from 1 to n, from a generator seeded with seed.
func RandomPorts(n uint32, seed int64) PortAssigner {
	rng := rand.New(rand.NewSource(seed))
	return func() uint32 {
		if n == 0 {
			return 0
		}
		return uint32(rng.Int63n(int64(n))) + 1
	}
}

// Reader reads packets from a pcap stream.
type Reader struct {
	r      *pcapgo.Reader
	assign PortAssigner
	n      int
}

func NewReader(r io.Reader, assign PortAssigner) (*Reader, error) {
	pr, err := pcapgo.NewReader(r)
	if err != nil {
		return nil, err
	}
	if lt := pr.LinkType(); lt != layers.LinkTypeEthernet {
		return nil, fmt.Errorf("%w: link type %v", ErrNotEthernet, lt)
	}
	if assign == nil {
		assign = RoundRobin(1)
	}
	return &Reader{r: pr, assign: assign}, nil
}

// Next returns the next packet, or io.EOF.
// InPort is the TCP source port, see Headers.IngressPort.
func (r *Reader) Next() (pipeval.Packet, error) {
	data, ci, err := r.r.ReadPacketData()
	if err != nil {
		return pipeval.Packet{}, err
	}
	r.n++
	h, err := Decode(data)
	if err != nil {
		return pipeval.Packet{}, fmt.Errorf("packet %d: %w", r.n, err)
	}
	return pipeval.Packet{
		Data:     data,
		Arrival:  ci.Timestamp,
		InPort:   h.IngressPort(),
		PhysPort: r.assign(),
	}, nil
}

// ReadAll reads packets until the end of the stream.
func ReadAll(r *Reader) ([]pipeval.Packet, error) {
	var ret []pipeval.Packet
	for {
		pkt, err := r.Next()
		if err == io.EOF {
			return ret, nil
		}
		if err != nil {
			return nil, err
		}
		ret = append(ret, pkt)
	}
}

// Writer writes packets to a pcap stream.
type Writer struct {
	w *pcapgo.Writer
}

const snaplen = 1 << 16

// NewWriter writes the pcap file header to w.
func NewWriter(w io.Writer) (*Writer, error) {
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(snaplen, layers.LinkTypeEthernet); err != nil {
		return nil, err
	}
	return &Writer{w: pw}, nil
}

// Write appends a frame captured at ts.
func (w *Writer) Write(ts time.Time, data []byte) error {
	return w.w.WritePacket(gopacket.CaptureInfo{
		Timestamp:     ts,
		CaptureLength: len(data),
		Length:        len(data),
	}, data)
}

// WriteResult writes the output of a forwarded packet.
// Dropped packets are skipped.
func (w *Writer) WriteResult(pkt pipeval.Packet, res pipeval.Result) error {
	if res.Verdict == pipeval.VerdictDrop {
		return nil
	}
	return w.Write(pkt.Arrival, res.Output)
}
