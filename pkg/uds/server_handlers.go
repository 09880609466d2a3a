package uds

import (
	"github.com/diagstack/gouds/pkg/clock"
	"github.com/diagstack/gouds/pkg/transport"
)

type handlerFunc func(s *Server, now uint32, req []byte, info transport.SDUInfo) NRC

var serviceHandlers = map[SID]handlerFunc{
	SIDDiagnosticSessionControl: handleDiagSessCtrl,
	SIDECUReset:                 handleECUReset,
	SIDReadDataByIdentifier:     handleReadDataByIdentifier,
	SIDReadMemoryByAddress:      handleReadMemoryByAddress,
	SIDSecurityAccess:           handleSecurityAccess,
	SIDCommunicationControl:     handleCommunicationControl,
	SIDWriteDataByIdentifier:    handleWriteDataByIdentifier,
	SIDRoutineControl:           handleRoutineControl,
	SIDRequestDownload:          handleRequestDownload,
	SIDRequestUpload:            handleRequestUpload,
	SIDTransferData:             handleTransferData,
	SIDRequestTransferExit:      handleRequestTransferExit,
	SIDTesterPresent:            handleTesterPresent,
	SIDControlDTCSetting:        handleControlDTCSetting,
}

// subFunctionServices are the SIDs whose byte[1] bit 7 is the suppress-
// positive-response flag (spec.md §4.3 "Suppression rules").
var subFunctionServices = map[SID]bool{
	SIDDiagnosticSessionControl: true,
	SIDECUReset:                 true,
	SIDSecurityAccess:           true,
	SIDCommunicationControl:     true,
	SIDRoutineControl:           true,
	SIDTesterPresent:            true,
	SIDControlDTCSetting:        true,
}

// suppressedNegativeCodes are the NRCs that a functionally-addressed
// request never reports (spec.md §4.3, UDS-1:2013 §7.5.5 Table 2).
var suppressedNegativeCodes = map[NRC]bool{
	NRCServiceNotSupported:                   true,
	NRCSubFunctionNotSupported:                true,
	NRCSubFunctionNotSupportedInActiveSession: true,
	NRCServiceNotSupportedInActiveSession:     true,
	NRCRequestOutOfRange:                      true,
}

// dispatch looks up the handler for req's SID, runs it into a fresh
// scratch buffer, and frames the result per the suppression/negative
// response rules. Returns the number of bytes to send (0 = suppressed).
func (s *Server) dispatch(now uint32, req []byte, info transport.SDUInfo) int {
	if len(req) == 0 {
		return 0
	}
	sid := SID(req[0])
	s.scratchLen = 0

	if s.metrics != nil {
		s.metrics.observeRequest(sid)
	}

	h, ok := serviceHandlers[sid]
	var code NRC
	if !ok {
		code = NRCServiceNotSupported
	} else {
		code = h(s, now, req, info)
	}
	return s.finish(sid, req, info, code)
}

func (s *Server) finish(sid SID, req []byte, info transport.SDUInfo, code NRC) int {
	switch code {
	case PositiveResponse:
		s.rcrrp = false
		if subFunctionServices[sid] && len(req) >= 2 && req[1]&0x80 != 0 {
			return 0
		}
		return copy(s.sendBuf, s.scratch[:s.scratchLen])

	case NRCRequestCorrectlyReceivedResponsePending:
		if s.rcrrp && s.metrics != nil {
			s.metrics.observeRCRRPRetry()
		}
		s.rcrrp = true
		return copy(s.sendBuf, []byte{NegativeResponseSID, byte(sid), byte(code)})

	default:
		s.rcrrp = false
		if s.metrics != nil {
			s.metrics.observeNegative(code)
		}
		if info.TargetType == transport.Functional && suppressedNegativeCodes[code] {
			return 0
		}
		return copy(s.sendBuf, []byte{NegativeResponseSID, byte(sid), byte(code)})
	}
}

// safeCopy appends data to the pending response, respecting capacity
// (spec.md §4.5 safe_copy).
func (s *Server) safeCopy(data []byte) NRC {
	if s.scratchLen+len(data) > len(s.scratch) {
		return NRCResponseTooLong
	}
	s.scratchLen += copy(s.scratch[s.scratchLen:], data)
	return PositiveResponse
}

// copier returns the scoped append capability (spec.md §9 "Copy callbacks
// as capabilities") handed to application callbacks for this dispatch.
func (s *Server) copier() Copier {
	return func(data []byte) error {
		if code := s.safeCopy(data); code != PositiveResponse {
			return code
		}
		return nil
	}
}

func readBE(b []byte) uint64 {
	var v uint64
	for _, x := range b {
		v = v<<8 | uint64(x)
	}
	return v
}

func writeBE(v uint64, n int) []byte {
	out := make([]byte, n)
	for i := n - 1; i >= 0; i-- {
		out[i] = byte(v)
		v >>= 8
	}
	return out
}

func minBytesFor(v uint64) int {
	n := 1
	for v > 0xFF {
		v >>= 8
		n++
	}
	return n
}

func decodeALFID(alfid byte) (lengthSize, addressSize int) {
	return int(alfid >> 4), int(alfid & 0x0F)
}

// isReservedSecuritySubFunction implements the spec.md Open Question
// resolution: the stricter reading (0x00, 0x7F, 0x43..0x5E) rather than
// the source's broader rejection.
func isReservedSecuritySubFunction(sub byte) bool {
	if sub == 0x00 || sub == 0x7F {
		return true
	}
	return sub >= 0x43 && sub <= 0x5E
}

func handleDiagSessCtrl(s *Server, now uint32, req []byte, _ transport.SDUInfo) NRC {
	if len(req) < 2 {
		return NRCIncorrectMessageLengthOrInvalidFormat
	}
	sessType := SessionType(req[1] & 0x4F)
	p2 := s.p2Millis
	p2Star := s.p2StarMillis
	code := s.fn(EventDiagSessCtrl, DiagSessCtrlArgs{Type: sessType, P2Ms: &p2, P2StarMs: &p2Star})
	if code != PositiveResponse {
		return code
	}
	s.sessionType = sessType
	if sessType != SessionDefault {
		s.s3Timer = now + s.s3Millis
	}
	p2StarTens := p2Star / 10
	body := []byte{
		byte(SIDDiagnosticSessionControl) + PositiveResponseOffset,
		byte(sessType),
		byte(p2 >> 8), byte(p2),
		byte(p2StarTens >> 8), byte(p2StarTens),
	}
	return s.safeCopy(body)
}

func handleECUReset(s *Server, now uint32, req []byte, _ transport.SDUInfo) NRC {
	if len(req) < 2 {
		return NRCIncorrectMessageLengthOrInvalidFormat
	}
	resetType := ECUResetType(req[1] & 0x3F)
	powerDown := uint32(DefaultPowerDownMillis)
	code := s.fn(EventEcuReset, EcuResetArgs{Type: resetType, PowerDownTimeMillis: &powerDown})
	if code != PositiveResponse {
		return code
	}
	s.ecuResetScheduled = resetType
	s.ecuResetTimer = now + powerDown
	s.notReadyToReceive = true

	body := []byte{byte(SIDECUReset) + PositiveResponseOffset, byte(resetType)}
	if resetType == ResetEnableRapidPowerShutDown {
		sec := powerDown / 1000
		if sec > 255 {
			sec = 255
		}
		body = append(body, byte(sec))
	}
	return s.safeCopy(body)
}

func handleReadDataByIdentifier(s *Server, now uint32, req []byte, _ transport.SDUInfo) NRC {
	if len(req) < 3 || (len(req)-1)%2 != 0 {
		return NRCIncorrectMessageLengthOrInvalidFormat
	}
	if code := s.safeCopy([]byte{byte(SIDReadDataByIdentifier) + PositiveResponseOffset}); code != PositiveResponse {
		return code
	}
	for i := 1; i+1 < len(req); i += 2 {
		did := uint16(req[i])<<8 | uint16(req[i+1])
		if code := s.safeCopy([]byte{byte(did >> 8), byte(did)}); code != PositiveResponse {
			return code
		}
		if code := s.fn(EventReadDataByIdent, ReadDataByIdentArgs{DataID: did, Copy: s.copier()}); code != PositiveResponse {
			return code
		}
	}
	return PositiveResponse
}

func handleReadMemoryByAddress(s *Server, now uint32, req []byte, _ transport.SDUInfo) NRC {
	if len(req) < 2 {
		return NRCIncorrectMessageLengthOrInvalidFormat
	}
	lenSize, addrSize := decodeALFID(req[1])
	if lenSize < 1 || lenSize > 8 || addrSize < 1 || addrSize > 8 {
		return NRCRequestOutOfRange
	}
	if len(req) < 2+addrSize+lenSize {
		return NRCIncorrectMessageLengthOrInvalidFormat
	}
	addr := readBE(req[2 : 2+addrSize])
	size := readBE(req[2+addrSize : 2+addrSize+lenSize])

	if code := s.safeCopy([]byte{byte(SIDReadMemoryByAddress) + PositiveResponseOffset}); code != PositiveResponse {
		return code
	}
	start := s.scratchLen
	code := s.fn(EventReadMemByAddr, ReadMemByAddrArgs{MemAddr: addr, MemSize: uint32(size), Copy: s.copier()})
	if code != PositiveResponse {
		return code
	}
	if uint64(s.scratchLen-start) != size {
		return NRCGeneralProgrammingFailure
	}
	return PositiveResponse
}

func handleSecurityAccess(s *Server, now uint32, req []byte, _ transport.SDUInfo) NRC {
	if len(req) < 2 {
		return NRCIncorrectMessageLengthOrInvalidFormat
	}
	sub := req[1] & 0x7F
	if isReservedSecuritySubFunction(sub) {
		return NRCIncorrectMessageLengthOrInvalidFormat
	}
	if clock.After(s.bootDelayTimer, now) {
		return NRCRequiredTimeDelayNotExpired
	}
	if clock.After(s.authFailTimer, now) {
		return NRCExceedNumberOfAttempts
	}

	if sub%2 == 1 {
		level := sub
		if s.securityLevel == level {
			return s.safeCopy([]byte{byte(SIDSecurityAccess) + PositiveResponseOffset, sub, 0x00, 0x00})
		}
		if code := s.safeCopy([]byte{byte(SIDSecurityAccess) + PositiveResponseOffset, sub}); code != PositiveResponse {
			return code
		}
		return s.fn(EventSecAccessRequestSeed, SecAccessRequestSeedArgs{
			Level:      level,
			DataRecord: req[2:],
			CopySeed:   s.copier(),
		})
	}

	level := sub - 1
	code := s.fn(EventSecAccessValidateKey, SecAccessValidateKeyArgs{Level: level, Key: req[2:]})
	if code != PositiveResponse {
		s.authFailTimer = now + s.authFailDelayMillis
		return code
	}
	s.securityLevel = level
	return s.safeCopy([]byte{byte(SIDSecurityAccess) + PositiveResponseOffset, sub})
}

func handleCommunicationControl(s *Server, now uint32, req []byte, _ transport.SDUInfo) NRC {
	if len(req) < 3 {
		return NRCIncorrectMessageLengthOrInvalidFormat
	}
	ctrl := req[1] & 0x7F
	comm := req[2]
	code := s.fn(EventCommCtrl, CommCtrlArgs{CtrlType: ctrl, CommType: comm})
	if code != PositiveResponse {
		return code
	}
	return s.safeCopy([]byte{byte(SIDCommunicationControl) + PositiveResponseOffset, ctrl})
}

func handleWriteDataByIdentifier(s *Server, now uint32, req []byte, _ transport.SDUInfo) NRC {
	if len(req) < 3 {
		return NRCIncorrectMessageLengthOrInvalidFormat
	}
	did := uint16(req[1])<<8 | uint16(req[2])
	code := s.fn(EventWriteDataByIdent, WriteDataByIdentArgs{DataID: did, Data: req[3:]})
	if code != PositiveResponse {
		return code
	}
	return s.safeCopy([]byte{byte(SIDWriteDataByIdentifier) + PositiveResponseOffset, byte(did >> 8), byte(did)})
}

func handleRoutineControl(s *Server, now uint32, req []byte, _ transport.SDUInfo) NRC {
	if len(req) < 4 {
		return NRCIncorrectMessageLengthOrInvalidFormat
	}
	ctrl := req[1] & 0x7F
	if ctrl < 1 || ctrl > 3 {
		return NRCRequestOutOfRange
	}
	rid := uint16(req[2])<<8 | uint16(req[3])
	if code := s.safeCopy([]byte{byte(SIDRoutineControl) + PositiveResponseOffset, ctrl, byte(rid >> 8), byte(rid)}); code != PositiveResponse {
		return code
	}
	return s.fn(EventRoutineCtrl, RoutineCtrlArgs{
		CtrlType:         ctrl,
		RoutineID:        rid,
		OptionRecord:     req[4:],
		CopyStatusRecord: s.copier(),
	})
}

func (s *Server) handleRequestTransfer(sid SID, tag EventTag, isDownload bool, req []byte) NRC {
	if s.xferIsActive {
		return NRCConditionsNotCorrect
	}
	if len(req) < 3 {
		return NRCIncorrectMessageLengthOrInvalidFormat
	}
	dataFormat := req[1]
	lenSize, addrSize := decodeALFID(req[2])
	if lenSize < 1 || lenSize > 8 || addrSize < 1 || addrSize > 8 {
		return NRCRequestOutOfRange
	}
	if len(req) < 3+addrSize+lenSize {
		return NRCIncorrectMessageLengthOrInvalidFormat
	}
	addr := readBE(req[3 : 3+addrSize])
	size := readBE(req[3+addrSize : 3+addrSize+lenSize])

	maxBlock := s.mtu
	code := s.fn(tag, RequestTransferArgs{
		Addr:                   addr,
		Size:                   size,
		DataFormatIdentifier:   dataFormat,
		MaxNumberOfBlockLength: &maxBlock,
	})
	if code != PositiveResponse {
		return code
	}
	if maxBlock < DefaultMinBlockLength {
		return NRCGeneralProgrammingFailure
	}
	if maxBlock > s.mtu {
		maxBlock = s.mtu
	}

	s.xferIsActive = true
	s.xferBlockSequenceCounter = 1
	s.xferByteCounter = 0
	s.xferTotalBytes = size
	s.xferBlockLength = maxBlock
	s.xferIsDownload = isDownload
	if s.metrics != nil {
		s.metrics.setTransferBytes(0)
	}

	blLenBytes := minBytesFor(uint64(maxBlock))
	body := []byte{byte(sid) + PositiveResponseOffset, byte(blLenBytes << 4)}
	body = append(body, writeBE(uint64(maxBlock), blLenBytes)...)
	return s.safeCopy(body)
}

func handleRequestDownload(s *Server, now uint32, req []byte, _ transport.SDUInfo) NRC {
	return s.handleRequestTransfer(SIDRequestDownload, EventRequestDownload, true, req)
}

func handleRequestUpload(s *Server, now uint32, req []byte, _ transport.SDUInfo) NRC {
	return s.handleRequestTransfer(SIDRequestUpload, EventRequestUpload, false, req)
}

func handleTransferData(s *Server, now uint32, req []byte, _ transport.SDUInfo) NRC {
	if !s.xferIsActive {
		return NRCUploadDownloadNotAccepted
	}
	if len(req) < 2 {
		return NRCIncorrectMessageLengthOrInvalidFormat
	}
	counter := req[1]
	data := req[2:]

	if !s.rcrrp && counter != s.xferBlockSequenceCounter {
		s.xferIsActive = false
		return NRCRequestSequenceError
	}
	if s.xferByteCounter+uint64(len(data)) > s.xferTotalBytes {
		s.xferIsActive = false
		return NRCTransferDataSuspended
	}

	if code := s.safeCopy([]byte{byte(SIDTransferData) + PositiveResponseOffset, counter}); code != PositiveResponse {
		return code
	}
	maxResp := uint32(len(s.scratch) - s.scratchLen)
	code := s.fn(EventTransferData, TransferDataArgs{Data: data, MaxRespLen: maxResp, CopyResponse: s.copier()})
	switch code {
	case PositiveResponse:
		s.xferByteCounter += uint64(len(data))
		s.xferBlockSequenceCounter++
		if s.metrics != nil {
			s.metrics.setTransferBytes(s.xferByteCounter)
		}
		return PositiveResponse
	case NRCRequestCorrectlyReceivedResponsePending:
		return code
	default:
		s.xferIsActive = false
		return code
	}
}

func handleRequestTransferExit(s *Server, now uint32, req []byte, _ transport.SDUInfo) NRC {
	if !s.xferIsActive {
		return NRCUploadDownloadNotAccepted
	}
	data := req[1:]
	if code := s.safeCopy([]byte{byte(SIDRequestTransferExit) + PositiveResponseOffset}); code != PositiveResponse {
		return code
	}
	code := s.fn(EventRequestTransferExit, RequestTransferExitArgs{Data: data, CopyResponse: s.copier()})
	if code == NRCRequestCorrectlyReceivedResponsePending {
		return code
	}
	s.xferIsActive = false
	if s.metrics != nil {
		s.metrics.setTransferBytes(0)
	}
	return code
}

func handleTesterPresent(s *Server, now uint32, req []byte, _ transport.SDUInfo) NRC {
	if len(req) != 2 {
		return NRCIncorrectMessageLengthOrInvalidFormat
	}
	sub := req[1]
	if sub != 0x00 && sub != 0x80 {
		return NRCSubFunctionNotSupported
	}
	if s.sessionType != SessionDefault {
		s.s3Timer = now + s.s3Millis
	}
	return s.safeCopy([]byte{byte(SIDTesterPresent) + PositiveResponseOffset, sub})
}

func handleControlDTCSetting(s *Server, now uint32, req []byte, _ transport.SDUInfo) NRC {
	if len(req) < 2 {
		return NRCIncorrectMessageLengthOrInvalidFormat
	}
	return s.safeCopy([]byte{byte(SIDControlDTCSetting) + PositiveResponseOffset, req[1]})
}
