package isotp

import (
	"github.com/diagstack/gouds/pkg/clock"
	log "github.com/sirupsen/logrus"
)

// RecvStatus is the lifecycle of an inbound SDU.
type RecvStatus uint8

const (
	RecvIdle RecvStatus = iota
	RecvInProgress
	RecvFull
	RecvError
)

// receiver is the receive-side ring described in spec.md §3: allocated
// buffer, offset, expected SN, block count and the N_Cr timer.
type receiver struct {
	txArbitrationID uint32 // where this receiver sends its flow control frames
	logger          *log.Logger

	buffer []byte
	size   int
	offset int
	sn     uint8
	block  uint8

	bsOwn    uint8  // block size we grant the sender via our FC
	stMinOwn uint32 // STmin (us) we grant the sender via our FC

	crTimer uint32
	nCr     uint32

	status RecvStatus
	result ProtocolResult

	send SendFunc
}

func newReceiver(txArbitrationID uint32, send SendFunc, nCr uint32, bsOwn uint8, stMinOwnUs uint32, logger *log.Logger) *receiver {
	return &receiver{
		txArbitrationID: txArbitrationID,
		send:            send,
		nCr:             nCr,
		bsOwn:           bsOwn,
		stMinOwn:        stMinOwnUs,
		status:          RecvIdle,
		result:          ResultIdle,
		logger:          logger,
	}
}

// HandleFrame processes an inbound SF/FF/CF addressed to this receiver.
// functional marks broadcast reception: a functional FF/CF is a protocol
// violation by the sender and is rejected rather than reassembled.
func (r *receiver) HandleFrame(frame Frame, now uint32, functional bool) {
	if frame.DLC == 0 {
		return
	}
	pci := frame.Data[0] >> 4
	switch pci {
	case pciSingleFrame:
		length := int(frame.Data[0] & 0x0F)
		if length == 0 || length > 7 || int(frame.DLC) < length+1 {
			r.result = ResultErrorInvalidFrame
			r.status = RecvError
			return
		}
		r.buffer = make([]byte, length)
		copy(r.buffer, frame.Data[1:1+length])
		r.size = length
		r.status = RecvFull
		r.result = ResultComplete

	case pciFirstFrame:
		if functional {
			r.result = ResultErrorFunctionalMultiFrame
			r.status = RecvError
			return
		}
		length := (int(frame.Data[0]&0x0F) << 8) | int(frame.Data[1])
		if length > MaxPayload || length <= 7 {
			r.result = ResultErrorInvalidFrame
			r.status = RecvError
			return
		}
		r.buffer = make([]byte, length)
		r.size = length
		n := copy(r.buffer, frame.Data[2:8])
		r.offset = n
		r.sn = 0
		r.block = 0
		r.status = RecvInProgress
		r.result = ResultInProgress
		r.crTimer = now + r.nCr
		r.sendFlowControl(FlowContinue)

	case pciConsecutiveFrame:
		if r.status != RecvInProgress {
			return
		}
		if functional {
			r.result = ResultErrorFunctionalMultiFrame
			r.status = RecvError
			return
		}
		sn := frame.Data[0] & 0x0F
		expected := (r.sn + 1) % 16
		if sn != expected {
			r.logger.Warnf("isotp receiver: wrong SN got %x want %x", sn, expected)
			r.result = ResultErrorWrongSN
			r.status = RecvError
			return
		}
		r.sn = sn
		remaining := r.size - r.offset
		n := remaining
		if n > 7 {
			n = 7
		}
		if int(frame.DLC) < n+1 {
			r.result = ResultErrorInvalidFrame
			r.status = RecvError
			return
		}
		copy(r.buffer[r.offset:r.offset+n], frame.Data[1:1+n])
		r.offset += n
		r.block++

		if r.offset >= r.size {
			r.status = RecvFull
			r.result = ResultComplete
			return
		}
		r.crTimer = now + r.nCr
		if r.bsOwn != 0 && r.block >= r.bsOwn {
			r.block = 0
			r.sendFlowControl(FlowContinue)
		}

	default:
		// FC and reserved PCI values are handled by the sender half of the
		// link, not the receiver.
	}
}

// Poll checks the N_Cr timeout while reassembly is in progress.
func (r *receiver) Poll(now uint32) {
	if r.status != RecvInProgress {
		return
	}
	if clock.After(now, r.crTimer) {
		r.logger.Warn("isotp receiver: N_Cr timeout")
		r.status = RecvError
		r.result = ResultErrorTimeoutCr
	}
}

// Peek returns the reassembled SDU once Full. The slice is only valid
// until the next Ack.
func (r *receiver) Peek() ([]byte, bool) {
	if r.status != RecvFull {
		return nil, false
	}
	return r.buffer, true
}

// Ack releases the current SDU and returns the receiver to Idle.
func (r *receiver) Ack() {
	r.status = RecvIdle
	r.result = ResultIdle
	r.buffer = nil
	r.offset = 0
	r.size = 0
}

func (r *receiver) sendFlowControl(fs FlowStatus) {
	payload := []byte{
		byte(pciFlowControlFrame<<4) | byte(fs),
		r.bsOwn,
		encodeSTmin(r.stMinOwn),
	}
	if err := r.send(NewFrame(r.txArbitrationID, payload)); err != nil {
		r.logger.WithError(err).Warn("isotp receiver: failed to send flow control")
	}
}
