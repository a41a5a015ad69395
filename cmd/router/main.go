// Command router runs the IP router core (ARP resolution, longest-prefix
// routing, ICMP error generation, optional NAT) against either real
// interfaces (built with -tags pcap) or the in-repo UDP link-bus fallback.
package main

import (
	"context"
	"encoding/binary"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/Lam920/cs144-lab/internal/router"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	routingTableFlag = flag.String("r", "", "routing table file (required)")
	topologyID       = flag.String("t", "", "topology id, logged for operator correlation")
	vhost            = flag.String("v", "", "virtual host identity, logged for operator correlation")
	brokerAddr       = flag.String("s", "", "link-layer broker address (required unless built with -tags pcap)")
	localPort        = flag.Int("p", 0, "local UDP port for the link-bus socket (0 picks an ephemeral port)")
	logFile          = flag.String("l", "", "log file path (stdout if unset)")
	ifaceSpec        = flag.String("i", "", "comma-separated interface list: name=ip=mac[,...] (required)")
	natEnable        = flag.Bool("n", false, "enable NAT translation, with the first -i interface as external and the second as internal")
	metricsEnable    = flag.Bool("metrics-enable", false, "enable prometheus metrics")
	metricsAddr      = flag.String("metrics-addr", "localhost:0", "address to listen on for prometheus metrics")
)

func main() {
	flag.Parse()

	logger, closeLog, err := buildLogger(*logFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "router: opening log file: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()
	slog.SetDefault(logger)

	if *topologyID != "" {
		logger = logger.With("topology_id", *topologyID)
	}
	if *vhost != "" {
		logger = logger.With("vhost", *vhost)
	}

	if *routingTableFlag == "" || *ifaceSpec == "" {
		logger.Error("router: -r and -i are required")
		os.Exit(1)
	}

	rt, err := router.LoadRouteTable(*routingTableFlag)
	if err != nil {
		logger.Error("router: loading routing table", "error", err)
		os.Exit(1)
	}

	ifaces, err := parseInterfaces(*ifaceSpec)
	if err != nil {
		logger.Error("router: parsing -i interface list", "error", err)
		os.Exit(1)
	}
	ifset := router.NewInterfaceSet(ifaces)

	if *metricsEnable {
		go serveMetrics(logger)
	}

	link, err := openLinkSource(ifaces, fmt.Sprintf(":%d", *localPort), *brokerAddr, logger)
	if err != nil {
		logger.Error("router: opening link source", "error", err)
		os.Exit(1)
	}
	defer link.Close()

	rtr := router.NewRouter(logger, ifset, rt, link.Send)

	if *natEnable {
		if len(ifaces) < 2 {
			logger.Error("router: -n requires at least two interfaces (external, internal)")
			os.Exit(1)
		}
		external, internal := ifaces[0], ifaces[1]
		rtr.EnableNAT(external.IP, internal.Name)
		logger.Info("router: nat enabled", "external_iface", external.Name, "internal_iface", internal.Name)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go rtr.Run(ctx)
	go link.Run(rtr.HandlePacket)

	logger.Info("router: started", "interfaces", ifaceNames(ifaces))
	<-ctx.Done()
	logger.Info("router: shutting down")
}

func buildLogger(path string) (*slog.Logger, func(), error) {
	if path == "" {
		return slog.New(slog.NewJSONHandler(os.Stdout, nil)), func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	return slog.New(slog.NewJSONHandler(f, nil)), func() { f.Close() }, nil
}

func serveMetrics(logger *slog.Logger) {
	buildInfo := promauto.NewGaugeVec(
		prometheus.GaugeOpts{Name: "router_build_info", Help: "Build information of the router."},
		[]string{"version"},
	)
	buildInfo.WithLabelValues("dev").Set(1)

	listener, err := net.Listen("tcp", *metricsAddr)
	if err != nil {
		logger.Error("router: failed to start prometheus metrics listener", "error", err)
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	logger.Info("router: prometheus metrics server started", "address", listener.Addr().String())
	if err := http.Serve(listener, mux); err != nil {
		logger.Warn("router: prometheus metrics server exited", "error", err)
	}
}

// parseInterfaces parses "name=ip=mac[,name=ip=mac...]" into Interface
// values, e.g. "eth1=192.168.1.1=02:00:00:00:01:01".
func parseInterfaces(spec string) ([]router.Interface, error) {
	parts := strings.Split(spec, ",")
	ifaces := make([]router.Interface, 0, len(parts))
	for _, p := range parts {
		fields := strings.Split(p, "=")
		if len(fields) != 3 {
			return nil, fmt.Errorf("malformed interface entry %q, expected name=ip=mac", p)
		}
		ipv4, err := ipStringToUint32(fields[1])
		if err != nil {
			return nil, fmt.Errorf("interface %q: %w", fields[0], err)
		}
		mac, err := net.ParseMAC(fields[2])
		if err != nil {
			return nil, fmt.Errorf("interface %q: %w", fields[0], err)
		}
		ifaces = append(ifaces, router.Interface{Name: fields[0], IP: ipv4, MAC: mac})
	}
	return ifaces, nil
}

func ipStringToUint32(s string) (uint32, error) {
	ip := net.ParseIP(s).To4()
	if ip == nil {
		return 0, fmt.Errorf("invalid ipv4 address %q", s)
	}
	return binary.BigEndian.Uint32(ip), nil
}

func ifaceNames(ifaces []router.Interface) string {
	names := make([]string, len(ifaces))
	for i, ifc := range ifaces {
		names[i] = ifc.Name + "/" + strconv.Itoa(int(ifc.IP))
	}
	return strings.Join(names, ",")
}
