package uds

import (
	"testing"

	"github.com/diagstack/gouds/pkg/clock"
	"github.com/diagstack/gouds/pkg/transport"
	"github.com/stretchr/testify/require"
)

func deliver(srv *memTransport, req []byte, target transport.AddressType) {
	copy(srv.peer.sendBuf[:], req)
	srv.peer.Send(len(req), transport.SDUInfo{TargetType: target})
}

// Scenario 1: DiagSessCtrl (spec.md §8 scenario 1).
func TestServerDiagSessCtrl(t *testing.T) {
	srvTp, testerTp := newMemTransportPair()
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

	deliver(srvTp, []byte{0x10, 0x03}, transport.Physical)
	srv.Poll(0)

	resp, _, ok := testerTp.Peek()
	require.True(t, ok)
	require.Equal(t, []byte{0x50, 0x03, 0x00, 0x32, 0x00, 0xC8}, resp)
}

// Scenario 2: ECU reset, rapid power shutdown.
func TestServerECUResetRapidPowerShutdown(t *testing.T) {
	srvTp, testerTp := newMemTransportPair()
	var resetFired int
	cb := func(tag EventTag, args any) NRC {
		switch tag {
		case EventEcuReset:
			a := args.(EcuResetArgs)
			*a.PowerDownTimeMillis = 5000
		case EventDoScheduledReset:
			resetFired++
		}
		return PositiveResponse
	}
	srv := NewServer(srvTp, cb, clock.NewSystem())
	srv.Init(0)

	deliver(srvTp, []byte{0x11, 0x04}, transport.Physical)
	srv.Poll(0)

	resp, _, ok := testerTp.Peek()
	require.True(t, ok)
	require.Equal(t, []byte{0x51, 0x04, 0x05}, resp)
	testerTp.AckRecv()

	srv.Poll(4999)
	require.Equal(t, 0, resetFired)
	srv.Poll(5001)
	require.Equal(t, 1, resetFired)
	srv.Poll(6000)
	require.Equal(t, 1, resetFired)
}

// Scenario 3: RDBI single DID.
func TestServerReadDataByIdentifier(t *testing.T) {
	srvTp, testerTp := newMemTransportPair()
	cb := func(tag EventTag, args any) NRC {
		if tag == EventReadDataByIdent {
			a := args.(ReadDataByIdentArgs)
			require.Equal(t, uint16(0xF190), a.DataID)
			require.NoError(t, a.Copy([]byte{0x31, 0x32, 0x33, 0x34, 0x35}))
		}
		return PositiveResponse
	}
	srv := NewServer(srvTp, cb, clock.NewSystem())
	srv.Init(0)

	deliver(srvTp, []byte{0x22, 0xF1, 0x90}, transport.Physical)
	srv.Poll(0)

	resp, _, ok := testerTp.Peek()
	require.True(t, ok)
	require.Equal(t, []byte{0x62, 0xF1, 0x90, 0x31, 0x32, 0x33, 0x34, 0x35}, resp)
}

// Scenario 4: security access refused during the boot delay, then seed and
// key succeed. Scenario 5 (failure + lockout) is the next test.
func TestServerSecurityAccessBootDelayThenSuccess(t *testing.T) {
	srvTp, testerTp := newMemTransportPair()
	cb := func(tag EventTag, args any) NRC {
		switch tag {
		case EventSecAccessRequestSeed:
			a := args.(SecAccessRequestSeedArgs)
			require.NoError(t, a.CopySeed([]byte{0xAA, 0xBB, 0xCC, 0xDD}))
			return PositiveResponse
		case EventSecAccessValidateKey:
			a := args.(SecAccessValidateKeyArgs)
			if string(a.Key) == string([]byte{0x01, 0x02, 0x03, 0x04}) {
				return PositiveResponse
			}
			return NRCInvalidKey
		}
		return PositiveResponse
	}
	srv := NewServer(srvTp, cb, clock.NewSystem(), WithBootDelay(1000))
	srv.Init(0)

	// Boot delay not yet elapsed.
	deliver(srvTp, []byte{0x27, 0x01}, transport.Physical)
	srv.Poll(500)
	resp, _, ok := testerTp.Peek()
	require.True(t, ok)
	require.Equal(t, []byte{0x7F, 0x27, byte(NRCRequiredTimeDelayNotExpired)}, resp)
	testerTp.AckRecv()

	deliver(srvTp, []byte{0x27, 0x01}, transport.Physical)
	srv.Poll(1000)
	resp, _, ok = testerTp.Peek()
	require.True(t, ok)
	require.Equal(t, []byte{0x67, 0x01, 0xAA, 0xBB, 0xCC, 0xDD}, resp)
	testerTp.AckRecv()

	deliver(srvTp, []byte{0x27, 0x02, 0x01, 0x02, 0x03, 0x04}, transport.Physical)
	srv.Poll(1000)
	resp, _, ok = testerTp.Peek()
	require.True(t, ok)
	require.Equal(t, []byte{0x67, 0x02}, resp)
	require.Equal(t, uint8(1), srv.securityLevel)
	testerTp.AckRecv()
}

func TestServerSecurityAccessFailureThenLockout(t *testing.T) {
	srvTp, testerTp := newMemTransportPair()
	cb := func(tag EventTag, args any) NRC {
		switch tag {
		case EventSecAccessRequestSeed:
			a := args.(SecAccessRequestSeedArgs)
			require.NoError(t, a.CopySeed([]byte{0xAA, 0xBB, 0xCC, 0xDD}))
			return PositiveResponse
		case EventSecAccessValidateKey:
			return NRCInvalidKey
		}
		return PositiveResponse
	}
	srv := NewServer(srvTp, cb, clock.NewSystem(), WithBootDelay(0))
	srv.Init(0)

	deliver(srvTp, []byte{0x27, 0x02, 0x00, 0x00, 0x00, 0x00}, transport.Physical)
	srv.Poll(0)
	resp, _, ok := testerTp.Peek()
	require.True(t, ok)
	require.Equal(t, []byte{0x7F, 0x27, byte(NRCInvalidKey)}, resp)
	testerTp.AckRecv()

	deliver(srvTp, []byte{0x27, 0x01}, transport.Physical)
	srv.Poll(500)
	resp, _, ok = testerTp.Peek()
	require.True(t, ok)
	require.Equal(t, []byte{0x7F, 0x27, byte(NRCExceedNumberOfAttempts)}, resp)
}

// Scenario 7: RCRRP retried across polls, state preserved.
func TestServerRCRRPRetriesUntilResolved(t *testing.T) {
	srvTp, testerTp := newMemTransportPair()
	attempts := 0
	cb := func(tag EventTag, args any) NRC {
		if tag != EventReadDataByIdent {
			return PositiveResponse
		}
		attempts++
		if attempts < 3 {
			return NRCRequestCorrectlyReceivedResponsePending
		}
		a := args.(ReadDataByIdentArgs)
		require.NoError(t, a.Copy([]byte{0x01}))
		return PositiveResponse
	}
	srv := NewServer(srvTp, cb, clock.NewSystem())
	srv.Init(0)

	deliver(srvTp, []byte{0x22, 0xF1, 0x90}, transport.Physical)
	srv.Poll(0)
	resp, _, ok := testerTp.Peek()
	require.True(t, ok)
	require.Equal(t, []byte{0x7F, 0x22, 0x78}, resp)
	testerTp.AckRecv()
	require.Equal(t, 1, attempts)

	srv.Poll(10)
	resp, _, ok = testerTp.Peek()
	require.True(t, ok)
	require.Equal(t, []byte{0x7F, 0x22, 0x78}, resp)
	testerTp.AckRecv()
	require.Equal(t, 2, attempts)

	srv.Poll(20)
	resp, _, ok = testerTp.Peek()
	require.True(t, ok)
	require.Equal(t, []byte{0x62, 0xF1, 0x90, 0x01}, resp)
	require.Equal(t, 3, attempts)
}

// Scenario 8: functional broadcast, unsupported SID is suppressed.
func TestServerFunctionalUnsupportedSIDSuppressed(t *testing.T) {
	srvTp, testerTp := newMemTransportPair()
	cb := func(tag EventTag, args any) NRC { return PositiveResponse }
	srv := NewServer(srvTp, cb, clock.NewSystem())
	srv.Init(0)

	deliver(srvTp, []byte{0x3F}, transport.Functional)
	srv.Poll(0)

	_, _, ok := testerTp.Peek()
	require.False(t, ok)
}

func TestServerPhysicalUnsupportedSIDReportsNRC(t *testing.T) {
	srvTp, testerTp := newMemTransportPair()
	cb := func(tag EventTag, args any) NRC { return PositiveResponse }
	srv := NewServer(srvTp, cb, clock.NewSystem())
	srv.Init(0)

	deliver(srvTp, []byte{0x3F}, transport.Physical)
	srv.Poll(0)

	resp, _, ok := testerTp.Peek()
	require.True(t, ok)
	require.Equal(t, []byte{0x7F, 0x3F, byte(NRCServiceNotSupported)}, resp)
}
