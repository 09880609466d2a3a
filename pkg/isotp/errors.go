package isotp

import "errors"

// ProtocolResult is the terminal outcome of a send or receive operation,
// modeled after the teacher's SDOAbortCode: a small typed code with a
// human description, rather than a bare error value, since callers
// (the transport handle) need to distinguish "still running" from the
// specific fault.
type ProtocolResult uint8

const (
	ResultIdle ProtocolResult = iota
	ResultInProgress
	ResultComplete
	ResultErrorTimeoutBs
	ResultErrorTimeoutCr
	ResultErrorWrongSN
	ResultErrorBufferOverflow
	ResultErrorInvalidFrame
	ResultErrorFunctionalMultiFrame
	ResultErrorWaitFrames
)

var resultDescription = map[ProtocolResult]string{
	ResultIdle:                      "idle",
	ResultInProgress:                "in progress",
	ResultComplete:                  "complete",
	ResultErrorTimeoutBs:            "timeout waiting for flow control (N_Bs)",
	ResultErrorTimeoutCr:            "timeout waiting for consecutive frame (N_Cr)",
	ResultErrorWrongSN:              "unexpected consecutive frame sequence number",
	ResultErrorBufferOverflow:       "flow control reported overflow",
	ResultErrorInvalidFrame:         "malformed ISO-TP frame, or frame rejected by the send callback",
	ResultErrorFunctionalMultiFrame: "functional addressing requires a single frame payload",
	ResultErrorWaitFrames:           "exceeded maximum number of wait frames",
}

func (r ProtocolResult) String() string {
	if s, ok := resultDescription[r]; ok {
		return s
	}
	return "unknown"
}

// IsError reports whether r is a terminal fault rather than Idle/InProgress/Complete.
func (r ProtocolResult) IsError() bool {
	return r >= ResultErrorTimeoutBs
}

var (
	ErrOversize       = errors.New("isotp: payload exceeds 4095 bytes")
	ErrFunctionalSize = errors.New("isotp: functional addressing requires payload <= 7 bytes")
	ErrSendBusy       = errors.New("isotp: sender is already in progress")
)
