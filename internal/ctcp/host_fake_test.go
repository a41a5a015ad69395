package ctcp

import (
	"io"
	"log/slog"
	"sync"
)

// fakeHost is an in-memory Host used by unit tests. Datagrams handed to
// ConnSend land in sent (optionally dropped by dropNext), and application
// input/output are simple in-memory queues driven by the test.
type fakeHost struct {
	mu sync.Mutex

	input  [][]byte
	eof    bool
	output [][]byte
	sent   [][]byte

	// dropNext, when > 0, discards that many upcoming ConnSend calls
	// instead of recording them — used to simulate a lost ACK or a lost
	// data segment.
	dropNext int

	removed   bool
	eofSignal bool
}

func newFakeHost() *fakeHost { return &fakeHost{} }

func (h *fakeHost) ConnInput(buf []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.input) == 0 {
		if h.eof {
			return 0, io.EOF
		}
		return 0, nil
	}
	chunk := h.input[0]
	h.input = h.input[1:]
	n := copy(buf, chunk)
	return n, nil
}

func (h *fakeHost) ConnOutput(buf []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	cp := append([]byte(nil), buf...)
	h.output = append(h.output, cp)
	return len(buf), nil
}

func (h *fakeHost) ConnBufspace() int { return 1 << 20 }

func (h *fakeHost) ConnEOF() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.eofSignal = true
}

func (h *fakeHost) ConnSend(buf []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.dropNext > 0 {
		h.dropNext--
		return nil
	}
	h.sent = append(h.sent, append([]byte(nil), buf...))
	return nil
}

func (h *fakeHost) ConnRemove() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removed = true
}

func (h *fakeHost) EndClient() {}

func (h *fakeHost) queueInput(b []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.input = append(h.input, b)
}

func (h *fakeHost) queueEOF() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.eof = true
}

func (h *fakeHost) lastSent() []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.sent) == 0 {
		return nil
	}
	return h.sent[len(h.sent)-1]
}

func (h *fakeHost) sentCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sent)
}

func testConfig() Config {
	return Config{Logger: slog.Default(), Timer: DefaultTimer, RTTimeout: DefaultRTTimeout, MSS: DefaultMSS, RecvWindow: DefaultRecvWindow}
}
