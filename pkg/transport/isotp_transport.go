package transport

import (
	"github.com/diagstack/gouds/pkg/clock"
	"github.com/diagstack/gouds/pkg/isotp"
	log "github.com/sirupsen/logrus"
)

// ISOTPHandle adapts an [isotp.Link] to the [Handle] contract. It is the
// only Handle implementation this module ships: the CAN layer (sockets,
// drivers, arbitration filtering) is out of scope (spec.md §1) and is
// represented here purely by the isotp.SendFunc the caller supplies and
// by the Deliver method the caller drives with inbound frames.
type ISOTPHandle struct {
	link *isotp.Link
	clk  clock.Clock

	physicalRxID   uint32
	functionalRxID uint32 // 0 disables functional reception (client side)
	responseAddr   uint32 // TargetAddress reported on the SDUInfo of inbound SDUs

	sendBuf   [isotp.MaxPayload]byte
	rxInfo    SDUInfo
	haveRxInfo bool

	logger *log.Logger
}

// NewISOTPHandle builds a transport Handle. cfg.TxArbitrationID is the
// arbitration ID used for outbound frames (requests, on a client;
// responses, on a server) and cfg.FCArbitrationID the one used for the
// flow control frames sent while reassembling an inbound SDU. physicalRxID is the 1:1 address this endpoint listens on;
// functionalRxID is the 1:N broadcast address (0 to disable, e.g. on a
// client that never receives functional traffic).
func NewISOTPHandle(cfg isotp.Config, physicalRxID, functionalRxID uint32, send isotp.SendFunc, clk clock.Clock, logger *log.Logger) *ISOTPHandle {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &ISOTPHandle{
		link:           isotp.NewLink(cfg, send, logger),
		clk:            clk,
		physicalRxID:   physicalRxID,
		functionalRxID: functionalRxID,
		responseAddr:   cfg.TxArbitrationID,
		logger:         logger,
	}
}

// Deliver hands the transport a CAN frame received on arbitrationID. This
// is the boundary named in spec.md §1: "frames arrive by being handed to
// it" — there is no socket read inside this package.
func (h *ISOTPHandle) Deliver(frame isotp.Frame, arbitrationID uint32) {
	now := h.clk.NowMillis()
	switch arbitrationID {
	case h.physicalRxID:
		h.link.Input(frame, now, false)
		if !h.haveRxInfo && h.link.RecvStatus() != isotp.RecvIdle {
			h.rxInfo = SDUInfo{TargetAddress: h.responseAddr, TargetType: Physical}
			h.haveRxInfo = true
		}
	case h.functionalRxID:
		if h.functionalRxID == 0 {
			return
		}
		h.link.Input(frame, now, true)
		if !h.haveRxInfo && h.link.RecvStatus() != isotp.RecvIdle {
			h.rxInfo = SDUInfo{TargetAddress: h.responseAddr, TargetType: Functional}
			h.haveRxInfo = true
		}
	default:
		// Not addressed to this endpoint.
	}
}

func (h *ISOTPHandle) SendBuffer() []byte {
	return h.sendBuf[:]
}

func (h *ISOTPHandle) Send(n int, info SDUInfo) (int, error) {
	if n > len(h.sendBuf) {
		return -1, ErrBufferTooSmall
	}
	now := h.clk.NowMillis()
	functional := info.TargetType == Functional
	if err := h.link.Send(h.sendBuf[:n], functional, now); err != nil {
		return -1, err
	}
	return n, nil
}

func (h *ISOTPHandle) Poll() PollStatus {
	now := h.clk.NowMillis()
	h.link.Poll(now)

	var status PollStatus
	if h.link.SendStatus() == isotp.SendInProgress {
		status |= SendInProgress
	}
	if h.link.RecvStatus() == isotp.RecvFull {
		status |= RecvComplete
	}
	if h.link.RecvStatus() == isotp.RecvError {
		h.logger.Warnf("isotp transport: inbound reassembly failed: %s", h.link.RecvResult())
		h.link.ResetReceiver()
		h.haveRxInfo = false
	}
	return status
}

func (h *ISOTPHandle) Peek() ([]byte, SDUInfo, bool) {
	payload, ok := h.link.Peek()
	if !ok {
		return nil, SDUInfo{}, false
	}
	return payload, h.rxInfo, true
}

func (h *ISOTPHandle) AckRecv() {
	h.link.Ack()
	h.haveRxInfo = false
}
