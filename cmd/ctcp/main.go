// Command ctcp is the lab's endpoint harness: it opens a UDP link to a
// single peer, drives one cTCP connection (stop-and-wait or go-back-n) over
// it, and pipes stdin to the connection's outbound stream and its delivered
// bytes to stdout.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/Lam920/cs144-lab/internal/ctcp"
	"github.com/Lam920/cs144-lab/internal/link"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// readPollInterval bounds the CPU spent polling Read() while a segment is
// outstanding and no new application input has arrived.
const readPollInterval = 2 * time.Millisecond

var (
	useStopWait   = flag.Bool("s", false, "use the stop-and-wait variant")
	useGBN        = flag.Bool("g", false, "use the go-back-n variant")
	port          = flag.Int("p", 0, "local UDP port to bind (0 picks an ephemeral port)")
	window        = flag.Uint("w", 0, "go-back-n send window size in bytes (defaults to the mss)")
	verbose       = flag.Bool("v", false, "enable verbose logging")
	metricsEnable = flag.Bool("metrics-enable", false, "enable prometheus metrics")
	metricsAddr   = flag.String("metrics-addr", "localhost:0", "address to listen on for prometheus metrics")
)

type scheduledConn interface {
	Read() error
	Receive([]byte) error
	Timer()
}

func main() {
	flag.Parse()
	args := flag.Args()
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: ctcp [-s|-g] -p port [-w window] host:port")
		os.Exit(1)
	}

	opts := &slog.HandlerOptions{}
	if *verbose {
		opts.Level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, opts))
	slog.SetDefault(logger)

	if *useStopWait == *useGBN {
		logger.Error("exactly one of -s or -g must be set")
		os.Exit(1)
	}

	peer, err := net.ResolveUDPAddr("udp4", args[0])
	if err != nil {
		logger.Error("resolving peer address", "error", err)
		os.Exit(1)
	}

	if *metricsEnable {
		go serveMetrics(logger)
	}

	conn, err := link.ListenUDP(fmt.Sprintf(":%d", *port))
	if err != nil {
		logger.Error("binding udp socket", "error", err)
		os.Exit(1)
	}

	ep := link.NewEndpoint(os.Stdin, os.Stdout, conn, peer, logger)
	reg := ctcp.NewRegistry()

	cfg := ctcp.Config{Logger: logger, SendWindow: uint16(*window)}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid ctcp configuration", "error", err)
		os.Exit(1)
	}

	var c scheduledConn
	if *useStopWait {
		sw, err := ctcp.OpenStopWait(ep, cfg, reg)
		if err != nil {
			logger.Error("opening stop-and-wait connection", "error", err)
			os.Exit(1)
		}
		c = sw
	} else {
		gbn, err := ctcp.OpenGBN(ep, cfg, reg)
		if err != nil {
			logger.Error("opening go-back-n connection", "error", err)
			os.Exit(1)
		}
		c = gbn
	}

	go link.ReceiveLoop(conn, c.Receive, logger)

	ticker := time.NewTicker(cfg.Timer)
	defer ticker.Stop()
	go func() {
		for range ticker.C {
			c.Timer()
		}
	}()

	for reg.Len() > 0 {
		if err := c.Read(); err != nil {
			logger.Error("reading application input", "error", err)
			break
		}
		time.Sleep(readPollInterval)
	}

	ep.EndClient()
}

func serveMetrics(logger *slog.Logger) {
	listener, err := net.Listen("tcp", *metricsAddr)
	if err != nil {
		logger.Error("failed to start prometheus metrics listener", "error", err)
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	logger.Info("prometheus metrics server started", "address", listener.Addr().String())
	if err := http.Serve(listener, mux); err != nil {
		logger.Warn("prometheus metrics server exited", "error", err)
	}
}
