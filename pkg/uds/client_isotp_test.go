package uds

import (
	"testing"

	"github.com/diagstack/gouds/pkg/clock"
	"github.com/diagstack/gouds/pkg/isotp"
	"github.com/diagstack/gouds/pkg/transport"
	"github.com/stretchr/testify/require"
)

type fakeISOTPClock struct{ now uint32 }

func (c *fakeISOTPClock) NowMillis() uint32 { return c.now }

// isotpRelay carries frames between two transport.ISOTPHandles, the same
// frame-relay idiom as pkg/transport's own isotp_transport_test.go, but
// used here to exercise a real multi-frame (FF/CF/FC) transmission rather
// than memTransport's synchronous, single-shot loopback.
type isotpRelay struct {
	toServer, toClient []isotp.Frame
}

// A SendSecurityAccessSendKey with a long key and SUPPRESS_POS_RESP set
// must still drive every consecutive frame of the request out over the
// wire before the client reports Idle, and must leave the ISO-TP sender
// ready for the next unrelated request.
func TestClientSuppressedMultiFrameSendCompletesBeforeIdle(t *testing.T) {
	clk := &fakeISOTPClock{}
	relay := &isotpRelay{}

	serverTp := transport.NewISOTPHandle(isotp.DefaultConfig(0x700, 0x700), 0x701, 0x702, func(f isotp.Frame) error {
		relay.toClient = append(relay.toClient, f)
		return nil
	}, clk, nil)
	clientTp := transport.NewISOTPHandle(isotp.DefaultConfig(0x701, 0x701), 0x700, 0, func(f isotp.Frame) error {
		relay.toServer = append(relay.toServer, f)
		return nil
	}, clk, nil)

	cb := func(tag EventTag, args any) NRC {
		if tag == EventSecAccessValidateKey {
			return PositiveResponse
		}
		return PositiveResponse
	}
	srv := NewServer(serverTp, cb, clock.NewSystem(), WithBootDelay(0))
	srv.Init(0)

	c := NewClient(clientTp, clock.NewSystem(), WithDefaultOptions(OptSuppressPosResp))

	// Body is SID+sub+8 key bytes = 10 bytes, past the 7-byte single-frame
	// limit, so the request is sent as FF + consecutive frames.
	key := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}
	require.NoError(t, c.SendSecurityAccessSendKey(0x01, key, 0))
	require.Equal(t, StateAwaitSendComplete, c.State())

	now := uint32(0)
	for i := 0; i < 1000 && (c.State() != StateIdle || len(relay.toServer) > 0 || len(relay.toClient) > 0); i++ {
		now++
		clk.now = now
		for _, f := range relay.toServer {
			serverTp.Deliver(f, 0x701)
		}
		relay.toServer = nil
		for _, f := range relay.toClient {
			clientTp.Deliver(f, 0x700)
		}
		relay.toClient = nil
		srv.Poll(now)
		c.Poll(now)
	}

	require.Equal(t, StateIdle, c.State())
	require.NoError(t, c.Err())
	require.Equal(t, uint8(1), srv.securityLevel)

	// The sender must not be left wedged in SendInProgress: an unrelated
	// request on the same client must be accepted.
	require.NoError(t, c.SendTesterPresent(now))
}
