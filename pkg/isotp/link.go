package isotp

import log "github.com/sirupsen/logrus"

// Config configures one direction pair of a Link: the arbitration IDs
// used for outbound application frames / outbound flow control, and the
// N-timers and flow-control parameters this side grants.
type Config struct {
	// TxArbitrationID is used for frames this Link originates as a sender
	// (SF/FF/CF of an outbound SDU).
	TxArbitrationID uint32
	// FCArbitrationID is used for the flow control frames this Link sends
	// back to a peer while reassembling an inbound multi-frame SDU. For a
	// typical request/response pair this equals TxArbitrationID.
	FCArbitrationID uint32

	Padding bool

	NBsMillis uint32 // sender: max wait for a flow control frame
	NCrMillis uint32 // receiver: max wait for the next consecutive frame
	MaxWFT    int    // sender: max consecutive Wait flow controls before giving up

	BlockSizeOwn  uint8  // receiver: BS granted to the peer (0 = never another FC)
	STminOwnMicro uint32 // receiver: STmin granted to the peer
}

// DefaultConfig returns the spec.md §4.2 defaults: BS=8, STmin=0,
// ISO_TP_MAX_WFT_NUMBER=1.
func DefaultConfig(txID, fcID uint32) Config {
	return Config{
		TxArbitrationID: txID,
		FCArbitrationID: fcID,
		NBsMillis:       1000,
		NCrMillis:       1000,
		MaxWFT:          1,
		BlockSizeOwn:    8,
		STminOwnMicro:   0,
	}
}

// Link is one ISO-TP segmentation engine: a sender for outbound SDUs and a
// receiver for inbound ones, sharing a send callback into the CAN layer.
type Link struct {
	cfg    Config
	send   SendFunc
	sender *sender
	recv   *receiver
	logger *log.Logger
}

// NewLink builds a Link. send transmits a single already-PCI-framed CAN
// frame; the CAN layer itself (arbitration, bus errors, ...) is out of
// scope and lives entirely behind this callback.
func NewLink(cfg Config, send SendFunc, logger *log.Logger) *Link {
	if logger == nil {
		logger = log.StandardLogger()
	}
	padded := send
	if cfg.Padding {
		padded = func(f Frame) error {
			f.Pad()
			return send(f)
		}
	}
	return &Link{
		cfg:    cfg,
		send:   padded,
		sender: newSender(cfg.TxArbitrationID, padded, cfg.NBsMillis, cfg.MaxWFT, logger),
		recv:   newReceiver(cfg.FCArbitrationID, padded, cfg.NCrMillis, cfg.BlockSizeOwn, cfg.STminOwnMicro, logger),
		logger: logger,
	}
}

// Send starts transmitting an SDU. See [sender.Send].
func (l *Link) Send(data []byte, functional bool, now uint32) error {
	return l.sender.Send(data, functional, now)
}

// Input hands the Link a CAN frame for processing: flow control frames
// feed the sender half, everything else feeds the receiver half.
func (l *Link) Input(frame Frame, now uint32, functional bool) {
	if frame.DLC == 0 {
		return
	}
	if frame.Data[0]>>4 == pciFlowControlFrame {
		l.sender.HandleFlowControl(frame, now)
		return
	}
	l.recv.HandleFrame(frame, now, functional)
}

// Poll drives timers on both halves; call at least as often as the
// tightest configured timeout requires.
func (l *Link) Poll(now uint32) {
	l.sender.Poll(now)
	l.recv.Poll(now)
}

func (l *Link) SendStatus() SendStatus       { return l.sender.Status() }
func (l *Link) SendResult() ProtocolResult   { return l.sender.Result() }
func (l *Link) RecvStatus() RecvStatus       { return l.recv.status }
func (l *Link) RecvResult() ProtocolResult   { return l.recv.result }
func (l *Link) Peek() ([]byte, bool)         { return l.recv.Peek() }
func (l *Link) Ack()                         { l.recv.Ack() }
func (l *Link) ResetReceiver()               { l.recv.Ack(); l.recv.result = ResultIdle }
