package pipcap

import (
	"bytes"
	"io"
	"net"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/require"

	"pipdataplane.org/pip/pipeval"
)

func tcpFrame(t testing.TB, srcPort, dstPort uint16, payload []byte) []byte {
	eth := layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 1},
		DstMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 2},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    net.IPv4(10, 0, 0, 1),
		DstIP:    net.IPv4(10, 0, 0, 2),
	}
	tcp := layers.TCP{
		SrcPort: layers.TCPPort(srcPort),
		DstPort: layers.TCPPort(dstPort),
		SYN:     true,
		Window:  1024,
	}
	require.NoError(t, tcp.SetNetworkLayerForChecksum(&ip))
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, &eth, &ip, &tcp, gopacket.Payload(payload)))
	return buf.Bytes()
}

func arpFrame(t testing.TB) []byte {
	eth := layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 1},
		DstMAC:       layers.EthernetBroadcast,
		EthernetType: layers.EthernetTypeARP,
	}
	arp := layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   []byte{0x02, 0, 0, 0, 0, 1},
		SourceProtAddress: []byte{10, 0, 0, 1},
		DstHwAddress:      []byte{0, 0, 0, 0, 0, 0},
		DstProtAddress:    []byte{10, 0, 0, 2},
	}
	buf := gopacket.NewSerializeBuffer()
	require.NoError(t, gopacket.SerializeLayers(buf, gopacket.SerializeOptions{}, &eth, &arp))
	return buf.Bytes()
}

func TestDecode(t *testing.T) {
	t.Parallel()
	h, err := Decode(tcpFrame(t, 4321, 80, []byte("hello")))
	require.NoError(t, err)
	require.Equal(t, Headers{
		Eth:     0,
		IPv4:    14 * 8,
		TCP:     34 * 8,
		EthType: layers.EthernetTypeIPv4,
		TCPSrc:  4321,
		TCPDst:  80,
	}, h)
	require.Equal(t, uint32(4321), h.IngressPort())

	h, err = Decode(arpFrame(t))
	require.NoError(t, err)
	require.False(t, h.HasTCP())
	require.Equal(t, -1, h.IPv4)
	require.Equal(t, uint32(0), h.IngressPort())

	_, err = Decode([]byte{1, 2})
	require.ErrorIs(t, err, ErrNotEthernet)
}

func TestPortAssigners(t *testing.T) {
	t.Parallel()
	rr := RoundRobin(3)
	var got []uint32
	for i := 0; i < 7; i++ {
		got = append(got, rr())
	}
	require.Equal(t, []uint32{1, 2, 3, 1, 2, 3, 1}, got)

	a, b := RandomPorts(4, 99), RandomPorts(4, 99)
	for i := 0; i < 100; i++ {
		x := a()
		require.Equal(t, x, b())
		require.GreaterOrEqual(t, x, uint32(1))
		require.LessOrEqual(t, x, uint32(4))
	}
	require.Equal(t, uint32(0), RoundRobin(0)())
}

func TestReadWrite(t *testing.T) {
	t.Parallel()
	frames := [][]byte{
		tcpFrame(t, 1000, 80, nil),
		arpFrame(t),
		tcpFrame(t, 2000, 443, []byte{1, 2, 3}),
	}
	ts := time.Unix(1700000000, 123000).UTC()

	var buf bytes.Buffer
	w, err := NewWriter(&buf)
	require.NoError(t, err)
	for i, f := range frames {
		require.NoError(t, w.Write(ts.Add(time.Duration(i)*time.Second), f))
	}

	r, err := NewReader(bytes.NewReader(buf.Bytes()), RoundRobin(2))
	require.NoError(t, err)
	pkts, err := ReadAll(r)
	require.NoError(t, err)
	require.Len(t, pkts, 3)
	for i, pkt := range pkts {
		require.Equal(t, frames[i], pkt.Data)
		require.True(t, ts.Add(time.Duration(i)*time.Second).Equal(pkt.Arrival))
	}
	require.Equal(t, []uint32{1000, 0, 2000}, []uint32{pkts[0].InPort, pkts[1].InPort, pkts[2].InPort})
	require.Equal(t, []uint32{1, 2, 1}, []uint32{pkts[0].PhysPort, pkts[1].PhysPort, pkts[2].PhysPort})

	_, err = r.Next()
	require.Equal(t, io.EOF, err)
}

func TestWriteResult(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	w, err := NewWriter(&buf)
	require.NoError(t, err)
	pkt := pipeval.Packet{Data: []byte{1}, Arrival: time.Unix(10, 0)}
	require.NoError(t, w.WriteResult(pkt, pipeval.Result{Verdict: pipeval.VerdictDrop, Output: []byte{1}}))
	require.NoError(t, w.WriteResult(pkt, pipeval.Result{Verdict: pipeval.VerdictOutput, Output: []byte{2}}))

	r, err := NewReader(bytes.NewReader(buf.Bytes()), nil)
	require.NoError(t, err)
	_, err = r.Next()
	// the only frame written is too short to be ethernet
	require.ErrorIs(t, err, ErrNotEthernet)
}
