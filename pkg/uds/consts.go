// Package uds implements the UDS (ISO 14229-1) server and client state
// machines described in spec.md §4.3/§4.4, layered above a
// [github.com/diagstack/gouds/pkg/transport.Handle].
package uds

// SID is a UDS service identifier (request byte 0).
type SID uint8

const (
	SIDDiagnosticSessionControl SID = 0x10
	SIDECUReset                 SID = 0x11
	SIDReadDataByIdentifier     SID = 0x22
	SIDReadMemoryByAddress      SID = 0x23
	SIDSecurityAccess           SID = 0x27
	SIDCommunicationControl     SID = 0x28
	SIDWriteDataByIdentifier    SID = 0x2E
	SIDRoutineControl           SID = 0x31
	SIDRequestDownload          SID = 0x34
	SIDRequestUpload            SID = 0x35
	SIDTransferData             SID = 0x36
	SIDRequestTransferExit      SID = 0x37
	SIDTesterPresent            SID = 0x3E
	SIDControlDTCSetting        SID = 0x85
)

// NegativeResponseSID is the fixed SID (0x7F) prefixing a negative
// response: {0x7F, request_sid, code}.
const NegativeResponseSID = 0x7F

// PositiveResponseOffset is added to a request SID to form the positive
// response SID.
const PositiveResponseOffset = 0x40

// NRC is a UDS negative response code (spec.md §7).
type NRC uint8

const (
	PositiveResponse NRC = 0x00

	NRCGeneralReject                             NRC = 0x10
	NRCServiceNotSupported                       NRC = 0x11
	NRCSubFunctionNotSupported                   NRC = 0x12
	NRCIncorrectMessageLengthOrInvalidFormat     NRC = 0x13
	NRCResponseTooLong                           NRC = 0x14
	NRCBusyRepeatRequest                         NRC = 0x21
	NRCConditionsNotCorrect                      NRC = 0x22
	NRCRequestSequenceError                      NRC = 0x24
	NRCNoResponseFromSubnetComponent             NRC = 0x25
	NRCFailurePreventsExecutionOfRequestedAction NRC = 0x26
	NRCRequestOutOfRange                         NRC = 0x31
	NRCSecurityAccessDenied                      NRC = 0x33
	NRCInvalidKey                                NRC = 0x35
	NRCExceedNumberOfAttempts                    NRC = 0x36
	NRCRequiredTimeDelayNotExpired                NRC = 0x37
	NRCUploadDownloadNotAccepted                 NRC = 0x70
	NRCTransferDataSuspended                     NRC = 0x71
	NRCGeneralProgrammingFailure                 NRC = 0x72
	NRCWrongBlockSequenceCounter                  NRC = 0x73
	NRCRequestCorrectlyReceivedResponsePending    NRC = 0x78
	NRCSubFunctionNotSupportedInActiveSession     NRC = 0x7E
	NRCServiceNotSupportedInActiveSession         NRC = 0x7F
)

var nrcDescription = map[NRC]string{
	PositiveResponse:                              "positive response",
	NRCGeneralReject:                              "general reject",
	NRCServiceNotSupported:                        "service not supported",
	NRCSubFunctionNotSupported:                    "sub-function not supported",
	NRCIncorrectMessageLengthOrInvalidFormat:      "incorrect message length or invalid format",
	NRCResponseTooLong:                            "response too long",
	NRCBusyRepeatRequest:                          "busy, repeat request",
	NRCConditionsNotCorrect:                       "conditions not correct",
	NRCRequestSequenceError:                       "request sequence error",
	NRCNoResponseFromSubnetComponent:              "no response from subnet component",
	NRCFailurePreventsExecutionOfRequestedAction:  "failure prevents execution of requested action",
	NRCRequestOutOfRange:                          "request out of range",
	NRCSecurityAccessDenied:                       "security access denied",
	NRCInvalidKey:                                 "invalid key",
	NRCExceedNumberOfAttempts:                     "exceed number of attempts",
	NRCRequiredTimeDelayNotExpired:                "required time delay not expired",
	NRCUploadDownloadNotAccepted:                  "upload/download not accepted",
	NRCTransferDataSuspended:                      "transfer data suspended",
	NRCGeneralProgrammingFailure:                  "general programming failure",
	NRCWrongBlockSequenceCounter:                  "wrong block sequence counter",
	NRCRequestCorrectlyReceivedResponsePending:    "request correctly received, response pending",
	NRCSubFunctionNotSupportedInActiveSession:     "sub-function not supported in active session",
	NRCServiceNotSupportedInActiveSession:         "service not supported in active session",
}

func (n NRC) Error() string {
	if s, ok := nrcDescription[n]; ok {
		return s
	}
	return "unknown negative response code"
}

// SessionType is srv.sessionType (spec.md §3).
type SessionType uint8

const (
	SessionDefault             SessionType = 0x01
	SessionProgramming         SessionType = 0x02
	SessionExtendedDiagnostic  SessionType = 0x03
	SessionSafetySystem        SessionType = 0x04
)

// ECUResetType is the sub-function of 0x11 ECUReset.
type ECUResetType uint8

const (
	ResetHard                  ECUResetType = 0x01
	ResetKeyOffOn              ECUResetType = 0x02
	ResetSoft                  ECUResetType = 0x03
	ResetEnableRapidPowerShutDown ECUResetType = 0x04
	ResetDisableRapidPowerShutDown ECUResetType = 0x05
)

// Default timing values, spec.md §6 "Defaults".
const (
	DefaultP2ClientMillis          = 150
	DefaultP2StarClientMillis      = 1500
	DefaultP2ServerMillis          = 50
	DefaultP2StarServerMillis      = 2000
	DefaultS3Millis                = 3000
	DefaultPowerDownMillis         = 10
	DefaultBootDelayMillis         = 1000
	DefaultAuthFailDelayMillis     = 1000
	DefaultTransportMTU            = 4095
	DefaultMinBlockLength          = 3
)
