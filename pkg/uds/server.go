package uds

import (
	"github.com/diagstack/gouds/pkg/clock"
	"github.com/diagstack/gouds/pkg/transport"
	log "github.com/sirupsen/logrus"
)

// Server is the UDS server (ECU) state machine of spec.md §4.3. It owns
// session/security/timing/transfer state and is driven exclusively by
// Poll - there is no internal goroutine, matching the cooperative,
// single-threaded model of spec.md §5.
type Server struct {
	tp     transport.Handle
	fn     Callback
	clk    clock.Clock
	logger *log.Logger
	metrics *Metrics

	mtu uint32

	// session (spec.md §3 "Server State")
	sessionType SessionType
	s3Millis    uint32
	s3Timer     uint32

	// security
	securityLevel       uint8
	bootDelayTimer      uint32
	bootDelayOffset     uint32
	authFailTimer       uint32
	authFailDelayMillis uint32

	// timing
	p2Millis     uint16
	p2StarMillis uint16
	p2Timer      uint32

	// ECU reset scheduling
	ecuResetTimer     uint32
	ecuResetScheduled ECUResetType
	notReadyToReceive bool

	// transfer
	xferIsActive             bool
	xferBlockSequenceCounter uint8
	xferTotalBytes           uint64
	xferByteCounter          uint64
	xferBlockLength          uint32
	xferIsDownload           bool

	// request/continuation state
	rcrrp      bool
	savedReq   []byte
	savedInfo  transport.SDUInfo

	// per-dispatch scratch response buffer (spec.md §4.5 safe_copy)
	scratch    []byte
	scratchLen int
	sendBuf    []byte
}

// Option configures a Server at construction time.
type Option func(*Server)

func WithLogger(l *log.Logger) Option    { return func(s *Server) { s.logger = l } }
func WithMetrics(m *Metrics) Option      { return func(s *Server) { s.metrics = m } }
func WithTransportMTU(mtu uint32) Option { return func(s *Server) { s.mtu = mtu } }
func WithP2(ms uint16) Option            { return func(s *Server) { s.p2Millis = ms } }
func WithP2Star(ms uint16) Option        { return func(s *Server) { s.p2StarMillis = ms } }
func WithS3(ms uint32) Option            { return func(s *Server) { s.s3Millis = ms } }
func WithBootDelay(ms uint32) Option     { return func(s *Server) { s.bootDelayOffset = ms } }
func WithAuthFailDelay(ms uint32) Option { return func(s *Server) { s.authFailDelayMillis = ms } }

// NewServer constructs a Server. Call Init once a clock reading is
// available (e.g. right before the first Poll) to arm the boot delay.
func NewServer(tp transport.Handle, fn Callback, clk clock.Clock, opts ...Option) *Server {
	s := &Server{
		tp:                       tp,
		fn:                       fn,
		clk:                      clk,
		logger:                   log.StandardLogger(),
		mtu:                      DefaultTransportMTU,
		sessionType:              SessionDefault,
		s3Millis:                 DefaultS3Millis,
		p2Millis:                 DefaultP2ServerMillis,
		p2StarMillis:             DefaultP2StarServerMillis,
		authFailDelayMillis:      DefaultAuthFailDelayMillis,
		bootDelayOffset:          DefaultBootDelayMillis,
		xferBlockSequenceCounter: 1,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.scratch = make([]byte, s.mtu)
	s.sendBuf = make([]byte, s.mtu)
	s.savedReq = make([]byte, 0, s.mtu)
	return s
}

// Init arms the boot delay and should be called once, with a clock
// reading, before the first Poll.
func (s *Server) Init(now uint32) {
	s.bootDelayTimer = now + s.bootDelayOffset
}

// advanceTimers implements spec.md §4.3 Main loop step 1.
func (s *Server) advanceTimers(now uint32) {
	if s.sessionType != SessionDefault && clock.After(now, s.s3Timer) {
		s.logger.Info("S3 timeout: reverting to default session")
		s.sessionType = SessionDefault
		s.securityLevel = 0
		s.fn(EventSessionTimeout, SessionTimeoutArgs{})
	}
	if s.ecuResetScheduled != 0 && clock.After(now, s.ecuResetTimer) {
		resetType := s.ecuResetScheduled
		s.ecuResetScheduled = 0
		s.fn(EventDoScheduledReset, DoScheduledResetArgs{Type: resetType})
	}
}

// Poll drives the server state machine (spec.md §4.3 Main loop). Call as
// often as P2/N-timers require (spec.md §5).
func (s *Server) Poll(now uint32) {
	s.advanceTimers(now)

	var respLen int
	if s.rcrrp {
		respLen = s.dispatch(now, s.savedReq, s.savedInfo)
	} else {
		status := s.tp.Poll()
		if status&transport.RecvComplete == 0 || s.notReadyToReceive {
			return
		}
		payload, info, ok := s.tp.Peek()
		if !ok {
			return
		}
		s.savedReq = append(s.savedReq[:0], payload...)
		s.savedInfo = info
		respLen = s.dispatch(now, s.savedReq, s.savedInfo)
		s.tp.AckRecv()
	}

	if respLen <= 0 {
		return
	}
	copy(s.tp.SendBuffer(), s.sendBuf[:respLen])
	if _, err := s.tp.Send(respLen, transport.SDUInfo{TargetType: s.savedInfo.TargetType}); err != nil {
		s.logger.WithError(err).Warn("uds server: transport send failed")
		return
	}
	if s.sessionType != SessionDefault {
		s.s3Timer = now + s.s3Millis
	}
}
