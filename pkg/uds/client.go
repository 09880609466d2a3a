package uds

import (
	"github.com/diagstack/gouds/pkg/clock"
	"github.com/diagstack/gouds/pkg/transport"
	log "github.com/sirupsen/logrus"
)

// ClientState is the client request state machine of spec.md §4.4.
type ClientState uint8

const (
	StateIdle ClientState = iota
	StateSending
	StateAwaitSendComplete
	StateAwaitResponse
	StateProcessResponse
)

// ClientOption is a bit in Client.options / Client.defaultOptions.
type ClientOption uint8

const (
	OptSuppressPosResp  ClientOption = 1 << iota // set bit 7 of byte[1] at send; response is not awaited
	OptFunctional                                // send via functional addressing; no response awaited
	OptNegRespIsErr                              // ErrNegativeResponse populates Err() on a negative response
	OptIgnoreSrvTimings                          // don't adopt P2/P2* reported by 0x50
)

// Client is the UDS client (tester) state machine of spec.md §4.4. It owns
// no internal goroutine; Poll must be called as often as P2/P2* require.
type Client struct {
	tp      transport.Handle
	clk     clock.Clock
	logger  *log.Logger
	metrics *Metrics

	p2Millis     uint16
	p2StarMillis uint16
	p2Timer      uint32

	state ClientState
	err   error

	options        ClientOption
	defaultOptions ClientOption
	optionsCopy    ClientOption

	sentSID         SID
	sentSubFunction byte
	hasSubFunction  bool
	sentDID         uint16
	hasDID          bool
	lastNRC         NRC

	recvBuf []byte

	seq    []SequenceStep
	seqIdx int
}

// ClientOpt configures a Client at construction time.
type ClientOpt func(*Client)

func WithClientLogger(l *log.Logger) ClientOpt  { return func(c *Client) { c.logger = l } }
func WithClientMetrics(m *Metrics) ClientOpt    { return func(c *Client) { c.metrics = m } }
func WithClientP2(ms uint16) ClientOpt          { return func(c *Client) { c.p2Millis = ms } }
func WithClientP2Star(ms uint16) ClientOpt      { return func(c *Client) { c.p2StarMillis = ms } }
func WithDefaultOptions(o ClientOption) ClientOpt { return func(c *Client) { c.defaultOptions = o } }

// NewClient constructs a Client bound to tp.
func NewClient(tp transport.Handle, clk clock.Clock, opts ...ClientOpt) *Client {
	c := &Client{
		tp:           tp,
		clk:          clk,
		logger:       log.StandardLogger(),
		p2Millis:     DefaultP2ClientMillis,
		p2StarMillis: DefaultP2StarClientMillis,
		state:        StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.options = c.defaultOptions
	c.recvBuf = make([]byte, 0, DefaultTransportMTU)
	return c
}

// State reports the current request state.
func (c *Client) State() ClientState { return c.state }

// Err reports the outcome of the most recently completed request, nil if
// it ended without error.
func (c *Client) Err() error { return c.err }

// LastNRC reports the negative response code of the most recently
// completed request (PositiveResponse if it succeeded).
func (c *Client) LastNRC() NRC { return c.lastNRC }

// Response returns the raw bytes of the most recently received response,
// positive or negative. Valid until the next request is sent.
func (c *Client) Response() []byte { return c.recvBuf }

// SetOptions sets the options bitset applied to the next request.
func (c *Client) SetOptions(o ClientOption) { c.options = o }

// PreRequestCheck validates that a new request may be issued (spec.md §4.4
// "Request builders").
func (c *Client) PreRequestCheck() error {
	if c.state != StateIdle {
		return ErrBusy
	}
	if c.tp == nil {
		return ErrNoTransport
	}
	return nil
}

// sendRequest performs PreRequestCheck, frames body into the transport
// send buffer (applying SUPPRESS_POS_RESP if requested and a sub-function
// byte is present), sends it, and advances the state machine.
func (c *Client) sendRequest(sid SID, subFunction byte, hasSubFunction bool, body []byte, now uint32) error {
	if err := c.PreRequestCheck(); err != nil {
		return err
	}
	buf := c.tp.SendBuffer()
	if len(body) > len(buf) {
		return ErrBufferSize
	}
	n := copy(buf, body)
	if hasSubFunction && c.options&OptSuppressPosResp != 0 && n >= 2 {
		buf[1] |= 0x80
	}

	functional := c.options&OptFunctional != 0
	info := transport.SDUInfo{TargetType: transport.Physical}
	if functional {
		info.TargetType = transport.Functional
	}

	c.state = StateSending
	sent, err := c.tp.Send(n, info)
	c.optionsCopy = c.options
	c.sentSID = sid
	c.sentSubFunction = subFunction
	c.hasSubFunction = hasSubFunction
	c.hasDID = false
	c.lastNRC = PositiveResponse
	if err != nil || sent < 0 {
		c.err = ErrTransport
		c.state = StateIdle
		return ErrTransport
	}

	c.state = StateAwaitSendComplete
	c.err = nil
	return nil
}

// Poll drives the client state machine (spec.md §4.4 request state
// machine table). Call as often as P2/P2* require.
func (c *Client) Poll(now uint32) {
	switch c.state {
	case StateAwaitSendComplete:
		status := c.tp.Poll()
		if status&transport.SendInProgress != 0 {
			return
		}
		if c.optionsCopy&OptSuppressPosResp != 0 || c.optionsCopy&OptFunctional != 0 {
			c.state = StateIdle
			return
		}
		c.p2Timer = now + uint32(c.p2Millis)
		c.state = StateAwaitResponse

	case StateAwaitResponse:
		if clock.After(now, c.p2Timer) {
			c.err = ErrTimeout
			c.state = StateIdle
			return
		}
		status := c.tp.Poll()
		if status&transport.RecvComplete == 0 {
			return
		}
		payload, info, ok := c.tp.Peek()
		if !ok {
			return
		}
		if info.TargetType == transport.Functional {
			c.tp.AckRecv()
			return
		}
		c.recvBuf = append(c.recvBuf[:0], payload...)
		c.tp.AckRecv()
		c.state = StateProcessResponse
		c.processResponse(now)
	}
}

// processResponse implements spec.md §4.4 "Validation" and
// "Post-validation actions".
func (c *Client) processResponse(now uint32) {
	data := c.recvBuf
	if len(data) < 1 {
		c.err = ErrResponseTooShort
		c.state = StateIdle
		return
	}

	if data[0] == NegativeResponseSID {
		if len(data) < 3 {
			c.err = ErrResponseTooShort
			c.state = StateIdle
			return
		}
		if SID(data[1]) != c.sentSID {
			c.err = ErrSIDMismatch
			c.state = StateIdle
			return
		}
		code := NRC(data[2])
		if code == NRCRequestCorrectlyReceivedResponsePending {
			if c.metrics != nil {
				c.metrics.observeRCRRPRetry()
			}
			c.p2Timer = now + uint32(c.p2StarMillis)
			c.recvBuf = c.recvBuf[:0]
			c.state = StateAwaitResponse
			return
		}
		c.lastNRC = code
		c.err = nil
		if c.optionsCopy&OptNegRespIsErr != 0 {
			c.err = ErrNegativeResponse
		}
		c.state = StateIdle
		return
	}

	if SID(data[0]) != c.sentSID+SID(PositiveResponseOffset) {
		c.err = ErrSIDMismatch
		c.state = StateIdle
		return
	}
	if c.hasSubFunction {
		if len(data) < 2 || data[1] != c.sentSubFunction {
			c.err = ErrSubFunctionMismatch
			c.state = StateIdle
			return
		}
	}
	if c.hasDID {
		if len(data) < 3 || uint16(data[1])<<8|uint16(data[2]) != c.sentDID {
			c.err = ErrDIDMismatch
			c.state = StateIdle
			return
		}
	}
	if c.sentSID == SIDDiagnosticSessionControl && c.optionsCopy&OptIgnoreSrvTimings == 0 && len(data) >= 6 {
		c.p2Millis = uint16(data[2])<<8 | uint16(data[3])
		c.p2StarMillis = (uint16(data[4])<<8 | uint16(data[5])) * 10
	}
	c.lastNRC = PositiveResponse
	c.err = nil
	c.state = StateIdle
}
