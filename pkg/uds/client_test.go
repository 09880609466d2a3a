package uds

import (
	"testing"

	"github.com/diagstack/gouds/pkg/clock"
	"github.com/stretchr/testify/require"
)

// runUntilIdle drives server and client Poll calls in lockstep until the
// client returns to Idle or the tick budget is exhausted.
func runUntilIdle(t *testing.T, srv *Server, c *Client, start, ticks uint32) uint32 {
	t.Helper()
	now := start
	for i := uint32(0); i < ticks; i++ {
		now++
		srv.Poll(now)
		c.Poll(now)
		if c.State() == StateIdle {
			return now
		}
	}
	t.Fatalf("client did not return to Idle within %d ticks", ticks)
	return now
}

func TestClientDiagSessCtrlAdoptsTimings(t *testing.T) {
	srvTp, cliTp := newMemTransportPair()
	cb := func(tag EventTag, args any) NRC {
		if tag == EventDiagSessCtrl {
			a := args.(DiagSessCtrlArgs)
			*a.P2Ms = 50
			*a.P2StarMs = 2000
		}
		return PositiveResponse
	}
	srv := NewServer(srvTp, cb, clock.NewSystem())
	srv.Init(0)
	c := NewClient(cliTp, clock.NewSystem())

	require.NoError(t, c.SendDiagSessCtrl(SessionExtendedDiagnostic, 0))
	runUntilIdle(t, srv, c, 0, 100)

	require.NoError(t, c.Err())
	require.Equal(t, uint16(50), c.p2Millis)
	require.Equal(t, uint16(2000), c.p2StarMillis)
	require.Equal(t, []byte{0x50, 0x03, 0x00, 0x32, 0x00, 0xC8}, c.Response())
}

func TestClientReadDataByIdentifier(t *testing.T) {
	srvTp, cliTp := newMemTransportPair()
	cb := func(tag EventTag, args any) NRC {
		if tag == EventReadDataByIdent {
			a := args.(ReadDataByIdentArgs)
			require.NoError(t, a.Copy([]byte{0x31, 0x32, 0x33, 0x34, 0x35}))
		}
		return PositiveResponse
	}
	srv := NewServer(srvTp, cb, clock.NewSystem())
	srv.Init(0)
	c := NewClient(cliTp, clock.NewSystem())

	require.NoError(t, c.SendReadDataByIdentifier([]uint16{0xF190}, 0))
	runUntilIdle(t, srv, c, 0, 100)

	require.NoError(t, c.Err())
	require.Equal(t, []byte{0x62, 0xF1, 0x90, 0x31, 0x32, 0x33, 0x34, 0x35}, c.Response())
}

func TestClientNegativeResponseSurfacedAsErrorWhenConfigured(t *testing.T) {
	srvTp, cliTp := newMemTransportPair()
	cb := func(tag EventTag, args any) NRC { return NRCRequestOutOfRange }
	srv := NewServer(srvTp, cb, clock.NewSystem())
	srv.Init(0)
	c := NewClient(cliTp, clock.NewSystem(), WithDefaultOptions(OptNegRespIsErr))

	require.NoError(t, c.SendRoutineControl(0x01, 0x1234, nil, 0))
	runUntilIdle(t, srv, c, 0, 100)

	require.ErrorIs(t, c.Err(), ErrNegativeResponse)
	require.Equal(t, NRCRequestOutOfRange, c.LastNRC())
}

func TestClientReceivesResponseAfterServerRCRRP(t *testing.T) {
	srvTp, cliTp := newMemTransportPair()
	attempts := 0
	cb := func(tag EventTag, args any) NRC {
		if tag != EventReadDataByIdent {
			return PositiveResponse
		}
		attempts++
		if attempts < 2 {
			return NRCRequestCorrectlyReceivedResponsePending
		}
		a := args.(ReadDataByIdentArgs)
		require.NoError(t, a.Copy([]byte{0x01}))
		return PositiveResponse
	}
	srv := NewServer(srvTp, cb, clock.NewSystem())
	srv.Init(0)
	c := NewClient(cliTp, clock.NewSystem())

	require.NoError(t, c.SendReadDataByIdentifier([]uint16{0xF190}, 0))
	runUntilIdle(t, srv, c, 0, 100)

	require.NoError(t, c.Err())
	require.Equal(t, 2, attempts)
	require.Equal(t, []byte{0x62, 0xF1, 0x90, 0x01}, c.Response())
}

func TestClientTimeoutWithNoServer(t *testing.T) {
	_, cliTp := newMemTransportPair()
	c := NewClient(cliTp, clock.NewSystem(), WithClientP2(10))

	require.NoError(t, c.SendTesterPresent(0))
	now := uint32(0)
	for i := 0; i < 100 && c.State() != StateIdle; i++ {
		now++
		c.Poll(now)
	}
	require.ErrorIs(t, c.Err(), ErrTimeout)
}

func TestClientSuppressedPositiveResponseReturnsIdleAfterSendCompletes(t *testing.T) {
	_, cliTp := newMemTransportPair()
	c := NewClient(cliTp, clock.NewSystem(), WithDefaultOptions(OptSuppressPosResp))

	require.NoError(t, c.SendTesterPresent(0))
	require.Equal(t, StateAwaitSendComplete, c.State())
	c.Poll(0)
	require.Equal(t, StateIdle, c.State())
	require.NoError(t, c.Err())
}
