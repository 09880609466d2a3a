package isotp

import (
	"github.com/diagstack/gouds/pkg/clock"
	log "github.com/sirupsen/logrus"
)

// SendStatus is the lifecycle of an outbound SDU.
type SendStatus uint8

const (
	SendIdle SendStatus = iota
	SendInProgress
	SendError
)

// sender is the transmit-side ring described in spec.md §3: it owns the
// outbound buffer, the rolling sequence number, the remaining block size,
// STmin pacing and the N_Bs timer.
type sender struct {
	arbitrationID uint32
	logger        *log.Logger

	buffer []byte
	offset int
	sn     uint8

	awaitingFC bool
	bs         uint8
	stMinUs    uint32
	wft        int
	maxWFT     int

	bsTimer uint32
	stTimer uint32

	status SendStatus
	result ProtocolResult

	send SendFunc
	nAs  uint32 // unused directly: single-frame and per-CF transmit is synchronous in this model
	nBs  uint32
}

func newSender(arbitrationID uint32, send SendFunc, nBs uint32, maxWFT int, logger *log.Logger) *sender {
	if maxWFT <= 0 {
		maxWFT = 1
	}
	return &sender{
		arbitrationID: arbitrationID,
		send:          send,
		nBs:           nBs,
		maxWFT:        maxWFT,
		status:        SendIdle,
		result:        ResultIdle,
		logger:        logger,
	}
}

// Send starts framing data. SF payloads complete synchronously (status
// returns to Idle before Send returns); multi-frame payloads return with
// status InProgress and require Poll/HandleFlowControl to advance.
func (s *sender) Send(data []byte, functional bool, now uint32) error {
	if len(data) > MaxPayload {
		return ErrOversize
	}
	if s.status == SendInProgress {
		return ErrSendBusy
	}
	if functional && len(data) > 7 {
		s.result = ResultErrorFunctionalMultiFrame
		return ErrFunctionalSize
	}

	if len(data) <= 7 {
		frame := NewFrame(s.arbitrationID, append([]byte{byte(pciSingleFrame<<4) | byte(len(data))}, data...))
		s.status = SendIdle
		s.result = ResultComplete
		return s.send(frame)
	}

	s.buffer = data
	s.offset = 6
	s.sn = 0
	s.awaitingFC = true
	s.wft = 0
	s.status = SendInProgress
	s.result = ResultInProgress
	s.bsTimer = now + s.nBs

	payload := make([]byte, 0, 8)
	payload = append(payload, byte(pciFirstFrame<<4)|byte((len(data)>>8)&0x0F), byte(len(data)&0xFF))
	payload = append(payload, data[:6]...)
	return s.send(NewFrame(s.arbitrationID, payload))
}

// Poll advances STmin-paced consecutive-frame transmission and the N_Bs
// timeout while awaiting a flow control frame.
func (s *sender) Poll(now uint32) {
	if s.status != SendInProgress {
		return
	}
	if s.awaitingFC {
		if clock.After(now, s.bsTimer) {
			s.logger.Warn("isotp sender: N_Bs timeout waiting for flow control")
			s.status = SendError
			s.result = ResultErrorTimeoutBs
		}
		return
	}
	if clock.After(now, s.stTimer) {
		s.sendNextCF(now)
	}
}

// HandleFlowControl processes an inbound FC frame while awaiting one.
func (s *sender) HandleFlowControl(frame Frame, now uint32) {
	if s.status != SendInProgress || !s.awaitingFC {
		return
	}
	fs := FlowStatus(frame.Data[0] & 0x0F)
	switch fs {
	case FlowContinue:
		s.bs = frame.Data[1]
		s.stMinUs = decodeSTmin(frame.Data[2])
		s.wft = 0
		s.awaitingFC = false
		s.stTimer = now // send first CF immediately
		s.sendNextCF(now)
	case FlowWait:
		s.wft++
		if s.wft > s.maxWFT {
			s.status = SendError
			s.result = ResultErrorWaitFrames
			return
		}
		s.bsTimer = now + s.nBs
	case FlowOverflow:
		s.status = SendError
		s.result = ResultErrorBufferOverflow
	default:
		s.logger.Warnf("isotp sender: ignoring malformed flow control FS=%x", fs)
	}
}

func (s *sender) sendNextCF(now uint32) {
	remaining := len(s.buffer) - s.offset
	if remaining <= 0 {
		s.status = SendIdle
		s.result = ResultComplete
		return
	}
	s.sn = (s.sn + 1) % 16
	n := remaining
	if n > 7 {
		n = 7
	}
	payload := make([]byte, 0, 8)
	payload = append(payload, byte(pciConsecutiveFrame<<4)|s.sn)
	payload = append(payload, s.buffer[s.offset:s.offset+n]...)
	if err := s.send(NewFrame(s.arbitrationID, payload)); err != nil {
		s.logger.WithError(err).Warn("isotp sender: transport rejected consecutive frame")
		s.status = SendError
		s.result = ResultErrorInvalidFrame
		return
	}
	s.offset += n

	if s.offset >= len(s.buffer) {
		s.status = SendIdle
		s.result = ResultComplete
		return
	}
	if s.bs > 0 {
		s.bs--
		if s.bs == 0 {
			s.awaitingFC = true
			s.bsTimer = now + s.nBs
			return
		}
	}
	s.stTimer = now + s.stMinUs/1000
	if s.stMinUs < 1000 {
		s.stTimer = now // sub-ms separation collapses to "next poll"
	}
}

func (s *sender) Status() SendStatus     { return s.status }
func (s *sender) Result() ProtocolResult { return s.result }
