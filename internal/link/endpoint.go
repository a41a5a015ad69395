package link

import (
	"bufio"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"

	"github.com/Lam920/cs144-lab/internal/ctcp"
)

// defaultBufCap is the bound conn_bufspace reports against, four times the
// maximum segment payload as SPEC_FULL.md's ctcp module documents.
const defaultBufCap = 4 * ctcp.MaxSegmentSize

// Endpoint implements ctcp.Host by piping application bytes between an
// io.Reader/io.Writer (ordinarily stdin/stdout) and a datagram socket wired
// to one peer address — the conn_input/conn_output/conn_send contract
// spec.md §6 assigns to the link-layer emulator.
type Endpoint struct {
	mu sync.Mutex

	appIn  *bufio.Reader
	appOut io.Writer
	conn   packetConn
	peer   *net.UDPAddr
	logger *slog.Logger

	bufUsed int
	removed bool
}

// NewEndpoint wires appIn/appOut to conn, addressed to peer.
func NewEndpoint(appIn io.Reader, appOut io.Writer, conn packetConn, peer *net.UDPAddr, logger *slog.Logger) *Endpoint {
	if logger == nil {
		logger = slog.Default()
	}
	return &Endpoint{
		appIn:  bufio.NewReader(appIn),
		appOut: appOut,
		conn:   conn,
		peer:   peer,
		logger: logger,
	}
}

// ConnInput implements ctcp.Host: reads application bytes destined for the
// peer, returning io.EOF once the source is exhausted.
func (e *Endpoint) ConnInput(buf []byte) (int, error) {
	n, err := e.appIn.Read(buf)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return n, io.EOF
		}
		return n, err
	}
	return n, nil
}

// ConnOutput implements ctcp.Host: delivers in-order payload bytes to the
// application sink.
func (e *Endpoint) ConnOutput(buf []byte) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	n, err := e.appOut.Write(buf)
	e.bufUsed += n
	if e.bufUsed > defaultBufCap {
		e.bufUsed = defaultBufCap
	}
	return n, err
}

// ConnBufspace implements ctcp.Host.
func (e *Endpoint) ConnBufspace() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	free := defaultBufCap - e.bufUsed
	if free < 0 {
		return 0
	}
	return free
}

// ConnSend implements ctcp.Host: hands a wire-ready segment to the
// unreliable datagram transport.
func (e *Endpoint) ConnSend(buf []byte) error {
	_, err := e.conn.WriteTo(buf, e.peer)
	return err
}

// ConnEOF implements ctcp.Host.
func (e *Endpoint) ConnEOF() {
	e.logger.Info("link: peer signaled end of stream")
}

// ConnRemove implements ctcp.Host: tears down link-layer state.
func (e *Endpoint) ConnRemove() {
	e.mu.Lock()
	already := e.removed
	e.removed = true
	e.mu.Unlock()
	if already {
		return
	}
	if err := e.conn.Close(); err != nil {
		e.logger.Warn("link: error closing socket", "error", err)
	}
}

// EndClient implements ctcp.Host: terminates the process once the
// connection has fully torn down, matching the lab harness's end_client().
func (e *Endpoint) EndClient() {
	e.logger.Info("link: client ended, exiting")
	os.Exit(0)
}

// ReceiveLoop reads datagrams off the socket until it errors (typically
// because ConnRemove closed it) and hands each to deliver. It runs on its
// own goroutine so the caller's timer-driven loop stays uncoupled from
// socket reads.
func ReceiveLoop(conn packetConn, deliver func([]byte) error, logger *slog.Logger) {
	buf := make([]byte, 64*1024)
	for {
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			logger.Debug("link: receive loop exiting", "error", err)
			return
		}
		segment := append([]byte(nil), buf[:n]...)
		if err := deliver(segment); err != nil {
			logger.Warn("link: error delivering segment", "error", err)
		}
	}
}
