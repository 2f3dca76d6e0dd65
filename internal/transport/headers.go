package transport

import (
	"fmt"
	"net"
	"sync"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

var (
	headerOnce sync.Once
	ipHeader   int
	tcpHeader  int
	headerErr  error
)

// HeaderSizes serializes an option-less IPv4 header and TCP header and
// returns their lengths in bytes.
func HeaderSizes() (ip, tcp int, err error) {
	headerOnce.Do(func() {
		ipv4 := &layers.IPv4{
			Version:  4,
			TTL:      64,
			Protocol: layers.IPProtocolTCP,
			SrcIP:    net.IPv4(10, 0, 0, 1),
			DstIP:    net.IPv4(10, 0, 2, 2),
		}
		seg := &layers.TCP{
			SrcPort: 49153,
			DstPort: 8080,
			ACK:     true,
			Window:  65535,
		}
		if err := seg.SetNetworkLayerForChecksum(ipv4); err != nil {
			headerErr = err
			return
		}
		opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}

		tcpBuf := gopacket.NewSerializeBuffer()
		if err := gopacket.SerializeLayers(tcpBuf, opts, seg); err != nil {
			headerErr = fmt.Errorf("serialize tcp header: %w", err)
			return
		}
		fullBuf := gopacket.NewSerializeBuffer()
		if err := gopacket.SerializeLayers(fullBuf, opts, ipv4, seg); err != nil {
			headerErr = fmt.Errorf("serialize ipv4 header: %w", err)
			return
		}
		tcpHeader = len(tcpBuf.Bytes())
		ipHeader = len(fullBuf.Bytes()) - tcpHeader
	})
	return ipHeader, tcpHeader, headerErr
}

// HeaderOverhead returns the IPv4 plus TCP header bytes carried by every segment
func HeaderOverhead() int {
	ip, tcp, err := HeaderSizes()
	if err != nil {
		return 40
	}
	return ip + tcp
}

// DefaultSegmentSize derives the payload size for an MTU the way the
// reference experiments do: mtu - 20 - (ip + tcp).
func DefaultSegmentSize(mtu int) (int, error) {
	size := mtu - 20 - HeaderOverhead()
	if size <= 0 {
		return 0, fmt.Errorf("%w: mtu %d leaves no room for payload", ErrInvalidOptions, mtu)
	}
	return size, nil
}
