package uds

import (
	"github.com/diagstack/gouds/pkg/transport"
)

// memTransport is a minimal in-memory transport.Handle for exercising the
// server/client state machines without going through ISO-TP segmentation -
// every SDU here fits a single "send" and arrives whole, same as the
// teacher's tests driving SDO client/server pairs through an in-process bus
// rather than real CAN hardware.
type memTransport struct {
	sendBuf [4096]byte

	pending    []byte
	pendingInfo transport.SDUInfo
	havePending bool

	peer *memTransport
}

func newMemTransportPair() (*memTransport, *memTransport) {
	a := &memTransport{}
	b := &memTransport{}
	a.peer = b
	b.peer = a
	return a, b
}

func (m *memTransport) SendBuffer() []byte { return m.sendBuf[:] }

func (m *memTransport) Send(n int, info transport.SDUInfo) (int, error) {
	if n > len(m.sendBuf) {
		return -1, transport.ErrBufferTooSmall
	}
	payload := make([]byte, n)
	copy(payload, m.sendBuf[:n])
	m.peer.pending = payload
	m.peer.pendingInfo = info
	m.peer.havePending = true
	return n, nil
}

func (m *memTransport) Poll() transport.PollStatus {
	var status transport.PollStatus
	if m.havePending {
		status |= transport.RecvComplete
	}
	return status
}

func (m *memTransport) Peek() ([]byte, transport.SDUInfo, bool) {
	if !m.havePending {
		return nil, transport.SDUInfo{}, false
	}
	return m.pending, m.pendingInfo, true
}

func (m *memTransport) AckRecv() {
	m.havePending = false
	m.pending = nil
}
