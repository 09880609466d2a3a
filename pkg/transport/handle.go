// Package transport defines the Transport Handle contract (spec.md §4.2)
// shared by every endpoint — UDS server and client alike talk to a Handle,
// never to an ISO-TP Link or a CAN bus directly. This is what lets a mock,
// in-memory transport and an ISO-TP-backed one satisfy the same interface.
package transport

import "errors"

// MessageType tags the addressing class of an SDU (spec.md §3).
type MessageType uint8

const (
	Diag MessageType = iota
	RemoteDiag
	SecureDiag
	SecureRemoteDiag
)

// AddressType is the target addressing mode of an SDU.
type AddressType uint8

const (
	Physical   AddressType = iota // 1:1
	Functional                    // 1:N, single-frame only
)

// SDUInfo is the addressing envelope carried alongside a payload at the
// transport boundary (spec.md §3 "Service Data Unit").
type SDUInfo struct {
	MessageType   MessageType
	SourceAddress uint32
	TargetAddress uint32
	TargetType    AddressType
	RemoteAddress uint32 // application-layer remote address, secure variants only
}

// PollStatus is a bitset returned by Handle.Poll.
type PollStatus uint8

const (
	SendInProgress PollStatus = 1 << iota
	RecvComplete
)

var (
	// ErrBufferTooSmall is returned by Send when n exceeds the capacity of
	// the slice previously returned by SendBuffer.
	ErrBufferTooSmall = errors.New("transport: send length exceeds buffer capacity")
	// ErrNothingPeeked describes an ack_recv with no pending SDU. AckRecv
	// has no error result, and no Handle in this module returns this value.
	ErrNothingPeeked = errors.New("transport: ack_recv with no peeked message")
)

// Handle is the uniform adapter every endpoint (server or client) is
// driven through. Multiple implementations - an ISO-TP-backed one, an
// in-memory one used by tests - satisfy this same contract (spec.md §2,
// Transport Handle row).
//
// Ownership: the Handle owns its buffers. The slice returned by Peek is
// only valid until AckRecv is called.
type Handle interface {
	// SendBuffer returns a writable region of known capacity; the caller
	// fills a prefix of it and passes the length used to Send.
	SendBuffer() []byte

	// Send transmits n bytes of the last buffer returned by SendBuffer
	// with the given addressing. A single-frame send may complete
	// synchronously; a multi-frame send completes asynchronously and must
	// be driven by Poll. Returns the number of bytes accepted, or an
	// error for a transport-level failure.
	Send(n int, info SDUInfo) (int, error)

	// Poll is non-blocking and reports the current status bits.
	Poll() PollStatus

	// Peek returns the most recently completed inbound SDU, if any. ok is
	// false when nothing is available.
	Peek() (payload []byte, info SDUInfo, ok bool)

	// AckRecv releases the peeked message. Subsequent Peek calls return
	// ok=false until the next complete SDU arrives.
	AckRecv()
}
