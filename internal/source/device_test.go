package source

import (
	"net"
	"testing"

	"github.com/google/gopacket/pcap"
)

func TestPickDeviceSkipsLoopbackAndAddressless(t *testing.T) {
	ifaces := []pcap.Interface{
		{Name: "lo", Flags: pcapIfLoopback, Addresses: []pcap.InterfaceAddress{{IP: net.IPv4(127, 0, 0, 1)}}},
		{Name: "dummy0"},
		{Name: "eth0", Addresses: []pcap.InterfaceAddress{{IP: net.IPv4(192, 0, 2, 10)}}},
	}

	dev, err := pickDevice(ifaces)
	if err != nil {
		t.Fatalf("pickDevice() error: %v", err)
	}
	if dev != "eth0" {
		t.Errorf("pickDevice() = %q; want eth0", dev)
	}
}

func TestPickDeviceNoneUsable(t *testing.T) {
	ifaces := []pcap.Interface{
		{Name: "lo", Flags: pcapIfLoopback, Addresses: []pcap.InterfaceAddress{{IP: net.IPv4(127, 0, 0, 1)}}},
	}
	if _, err := pickDevice(ifaces); err == nil {
		t.Error("pickDevice() found a device among loopback-only interfaces")
	}
}
