package source

import (
	"fmt"

	"github.com/google/gopacket/pcap"
)

// pcapIfLoopback mirrors PCAP_IF_LOOPBACK from pcap.h.
const pcapIfLoopback = 0x00000001

// defaultDevice picks a capture interface when none is configured, the way
// tcpdump does: the first non-loopback interface that carries an address.
func defaultDevice() (string, error) {
	ifaces, err := pcap.FindAllDevs()
	if err != nil {
		return "", fmt.Errorf("failed to enumerate capture devices: %w", err)
	}
	return pickDevice(ifaces)
}

func pickDevice(ifaces []pcap.Interface) (string, error) {
	for _, iface := range ifaces {
		if iface.Flags&pcapIfLoopback != 0 {
			continue
		}
		if len(iface.Addresses) == 0 {
			continue
		}
		return iface.Name, nil
	}
	return "", fmt.Errorf("no usable capture device found")
}
