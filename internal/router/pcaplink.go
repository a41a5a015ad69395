//go:build pcap

package router

import (
	"fmt"
	"log/slog"

	"github.com/google/gopacket/pcap"
)

// PcapLink captures and injects frames on real network interfaces via
// libpcap, the deployed-build counterpart to LinkBus. Built only with
// `-tags pcap`, since libpcap headers are not assumed present otherwise.
type PcapLink struct {
	handles map[string]*pcap.Handle
	logger  *slog.Logger
}

// OpenPcapLink opens a live capture handle on every named interface.
func OpenPcapLink(ifaceNames []string, logger *slog.Logger) (*PcapLink, error) {
	handles := make(map[string]*pcap.Handle, len(ifaceNames))
	for _, name := range ifaceNames {
		h, err := pcap.OpenLive(name, 65536, true, pcap.BlockForever)
		if err != nil {
			for _, opened := range handles {
				opened.Close()
			}
			return nil, fmt.Errorf("router: opening pcap handle on %q: %w", name, err)
		}
		handles[name] = h
	}
	return &PcapLink{handles: handles, logger: logger}, nil
}

// Close releases every capture handle.
func (p *PcapLink) Close() error {
	for _, h := range p.handles {
		h.Close()
	}
	return nil
}

// Send implements router.SendFunc by injecting frame on the named
// interface's capture handle.
func (p *PcapLink) Send(frame []byte, iface string) error {
	h, ok := p.handles[iface]
	if !ok {
		return fmt.Errorf("router: no pcap handle for interface %q", iface)
	}
	return h.WritePacketData(frame)
}

// Run reads captured frames off every interface concurrently, handing each
// to deliver.
func (p *PcapLink) Run(deliver func(frame []byte, iface string) error) {
	for name, h := range p.handles {
		go func(name string, h *pcap.Handle) {
			for {
				data, _, err := h.ReadPacketData()
				if err != nil {
					p.logger.Debug("router: pcap capture loop exiting", "error", err, "iface", name)
					return
				}
				if err := deliver(data, name); err != nil {
					p.logger.Warn("router: error handling captured frame", "error", err, "iface", name)
				}
			}
		}(name, h)
	}
}
