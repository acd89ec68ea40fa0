// Package pipcap reads packets from pcap captures for evaluation and writes the results back out.
package pipcap

import (
	"errors"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

var ErrNotEthernet = errors.New("pipcap: frame is not ethernet")

// Headers holds the positions of the decoded headers of a frame, in bits from the start of the frame.
// An offset is -1 if the header is not present.
type Headers struct {
	Eth  int
	IPv4 int
	TCP  int

	EthType layers.EthernetType
	TCPSrc  uint16
	TCPDst  uint16
}

func (h Headers) HasTCP() bool {
	return h.TCP >= 0
}

// IngressPort returns the port a frame logically arrived on.
// It is the TCP source port, or 0 for frames without TCP.
func (h Headers) IngressPort() uint32 {
	if !h.HasTCP() {
		return 0
	}
	return uint32(h.TCPSrc)
}

// Decode finds the Ethernet, IPv4 and TCP headers in data.
func Decode(data []byte) (Headers, error) {
	h := Headers{Eth: -1, IPv4: -1, TCP: -1}
	pkt := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.DecodeOptions{Lazy: true, NoCopy: true})
	eth, ok := pkt.Layer(layers.LayerTypeEthernet).(*layers.Ethernet)
	if !ok {
		return h, ErrNotEthernet
	}
	h.Eth = 0
	h.EthType = eth.EthernetType
	off := len(eth.Contents)

	ip, ok := pkt.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
	if !ok {
		return h, nil
	}
	h.IPv4 = off * 8
	off += len(ip.Contents)

	tcp, ok := pkt.Layer(layers.LayerTypeTCP).(*layers.TCP)
	if !ok {
		return h, nil
	}
	h.TCP = off * 8
	h.TCPSrc = uint16(tcp.SrcPort)
	h.TCPDst = uint16(tcp.DstPort)
	return h, nil
}
