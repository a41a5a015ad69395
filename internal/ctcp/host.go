package ctcp

import "io"

// Host is the set of external collaborators a ctcp connection is driven by,
// corresponding to spec.md §6's conn_input/conn_output/conn_bufspace/
// conn_send/conn_remove/end_client, plus ConnEOF for signalling the end of
// the peer's stream to the application. The link-layer emulator
// that actually implements Host lives outside this package's scope (see
// internal/link); ctcp only depends on this interface.
type Host interface {
	// ConnInput reads up to len(buf) bytes of application input without
	// blocking. It returns (0, nil) when nothing is currently available,
	// and (0, io.EOF) once the input stream is exhausted.
	ConnInput(buf []byte) (n int, err error)

	// ConnOutput delivers len(buf) bytes of in-order application data.
	// The connections in this package call it without consulting
	// ConnBufspace first.
	ConnOutput(buf []byte) (n int, err error)

	// ConnBufspace reports how many free bytes remain in the output
	// buffer. The connections in this package never call it.
	ConnBufspace() int

	// ConnEOF signals the application that the peer's half of the stream
	// has ended (a FIN was received and acknowledged).
	ConnEOF()

	// ConnSend hands a fully-serialized ctcp datagram to the unreliable
	// link emulator.
	ConnSend(buf []byte) error

	// ConnRemove destroys link-layer state associated with this
	// connection. Called exactly once, at teardown.
	ConnRemove()

	// EndClient optionally terminates the host process after the
	// connection ends; a no-op Host may leave this empty.
	EndClient()
}

// ErrEOF is an alias of io.EOF for readability at call sites; ctcp treats
// conn_input's documented "-1 on EOF" as io.EOF idiomatically.
var ErrEOF = io.EOF
