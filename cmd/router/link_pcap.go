//go:build pcap

package main

import (
	"log/slog"

	"github.com/Lam920/cs144-lab/internal/router"
)

// linkSource is the capture/injection backend main() drives; satisfied by
// both build variants so HandlePacket wiring stays identical either way.
type linkSource interface {
	Send(frame []byte, iface string) error
	Run(deliver func(frame []byte, iface string) error)
	Close() error
}

func openLinkSource(ifaces []router.Interface, localAddr, brokerAddr string, logger *slog.Logger) (linkSource, error) {
	names := make([]string, len(ifaces))
	for i, ifc := range ifaces {
		names[i] = ifc.Name
	}
	return router.OpenPcapLink(names, logger)
}
