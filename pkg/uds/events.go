package uds

// EventTag identifies which argument record is carried by a Callback
// invocation (spec.md §6, spec.md §9 "Event dispatch without indirect
// function pointers"). The dispatcher matches on tag and passes a typed
// argument struct rather than relying on runtime polymorphism - a closed
// set of handlers over an open set of events, same shape as the teacher's
// switch-on-SDOState dispatch in sdo_server.go.
type EventTag uint8

const (
	EventDiagSessCtrl EventTag = iota
	EventEcuReset
	EventReadDataByIdent
	EventReadMemByAddr
	EventCommCtrl
	EventSecAccessRequestSeed
	EventSecAccessValidateKey
	EventWriteDataByIdent
	EventRoutineCtrl
	EventRequestDownload
	EventRequestUpload
	EventTransferData
	EventRequestTransferExit
	EventSessionTimeout
	EventDoScheduledReset
)

// Copier is the scoped, capability-style handle a callback uses to append
// bytes to the pending response buffer (spec.md §9 "Copy callbacks as
// capabilities"). It is only valid for the duration of the callback
// invocation that received it; do not retain it. Returns NRCResponseTooLong
// wrapped as an error if the append would exceed the response buffer.
type Copier func(data []byte) error

// DiagSessCtrlArgs is EventDiagSessCtrl's argument record. Type is the
// requested session type; the callback fills P2Ms/P2StarMs with the
// timing values to report back (defaults are pre-populated).
type DiagSessCtrlArgs struct {
	Type    SessionType
	P2Ms    *uint16
	P2StarMs *uint16
}

// EcuResetArgs is EventEcuReset's argument record.
type EcuResetArgs struct {
	Type                ECUResetType
	PowerDownTimeMillis *uint32
}

// ReadDataByIdentArgs is EventReadDataByIdent's argument record.
type ReadDataByIdentArgs struct {
	DataID uint16
	Copy   Copier
}

// ReadMemByAddrArgs is EventReadMemByAddr's argument record.
type ReadMemByAddrArgs struct {
	MemAddr uint64
	MemSize uint32
	Copy    Copier
}

// CommCtrlArgs is EventCommCtrl's argument record.
type CommCtrlArgs struct {
	CtrlType uint8
	CommType uint8
}

// SecAccessRequestSeedArgs is EventSecAccessRequestSeed's argument record.
type SecAccessRequestSeedArgs struct {
	Level      uint8
	DataRecord []byte
	CopySeed   Copier
}

// SecAccessValidateKeyArgs is EventSecAccessValidateKey's argument record.
type SecAccessValidateKeyArgs struct {
	Level uint8
	Key   []byte
}

// WriteDataByIdentArgs is EventWriteDataByIdent's argument record.
type WriteDataByIdentArgs struct {
	DataID uint16
	Data   []byte
}

// RoutineCtrlArgs is EventRoutineCtrl's argument record.
type RoutineCtrlArgs struct {
	CtrlType         uint8
	RoutineID        uint16
	OptionRecord     []byte
	CopyStatusRecord Copier
}

// RequestTransferArgs is shared by EventRequestDownload and
// EventRequestUpload. The callback may reduce MaxNumberOfBlockLength;
// values below 3 or above the transport MTU are rejected/clamped by the
// server per spec.md §4.3.
type RequestTransferArgs struct {
	Addr                 uint64
	Size                 uint64
	DataFormatIdentifier uint8
	MaxNumberOfBlockLength *uint32
}

// TransferDataArgs is EventTransferData's argument record.
type TransferDataArgs struct {
	Data         []byte
	MaxRespLen   uint32
	CopyResponse Copier
}

// RequestTransferExitArgs is EventRequestTransferExit's argument record.
type RequestTransferExitArgs struct {
	Data         []byte
	CopyResponse Copier
}

// SessionTimeoutArgs is EventSessionTimeout's (empty) argument record.
type SessionTimeoutArgs struct{}

// DoScheduledResetArgs is EventDoScheduledReset's argument record.
type DoScheduledResetArgs struct {
	Type ECUResetType
}

// Callback is the single user-supplied application entry point (spec.md
// §4.3 "Event callback"). Returning PositiveResponse accepts the request;
// returning NRCRequestCorrectlyReceivedResponsePending asks the server to
// delay; any other value becomes the negative response code verbatim.
type Callback func(tag EventTag, args any) NRC
