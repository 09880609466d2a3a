package transport

import (
	"testing"

	"github.com/diagstack/gouds/pkg/clock"
	"github.com/diagstack/gouds/pkg/isotp"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ now uint32 }

func (c *fakeClock) NowMillis() uint32 { return c.now }

// link connects two ISOTPHandles back to back, same loopback idiom as the
// isotp package's own link_test.go.
type link struct {
	toB, toA []isotp.Frame
}

func TestISOTPHandleRequestResponse(t *testing.T) {
	clk := &fakeClock{}
	l := &link{}

	server := NewISOTPHandle(isotp.DefaultConfig(0x700, 0x700), 0x701, 0x702, func(f isotp.Frame) error {
		l.toA = append(l.toA, f)
		return nil
	}, clk, nil)

	client := NewISOTPHandle(isotp.DefaultConfig(0x701, 0x701), 0x700, 0, func(f isotp.Frame) error {
		l.toB = append(l.toB, f)
		return nil
	}, clk, nil)

	copy(client.SendBuffer(), []byte{0x10, 0x03})
	n, err := client.Send(2, SDUInfo{TargetType: Physical})
	require.NoError(t, err)
	require.Equal(t, 2, n)

	for _, f := range l.toB {
		server.Deliver(f, 0x701)
	}
	l.toB = nil

	status := server.Poll()
	require.NotZero(t, status&RecvComplete)

	payload, info, ok := server.Peek()
	require.True(t, ok)
	require.Equal(t, []byte{0x10, 0x03}, payload)
	require.Equal(t, Physical, info.TargetType)
	server.AckRecv()

	copy(server.SendBuffer(), []byte{0x50, 0x03, 0x00, 0x32, 0x00, 0xC8})
	_, err = server.Send(6, SDUInfo{TargetType: Physical})
	require.NoError(t, err)

	for _, f := range l.toA {
		client.Deliver(f, 0x700)
	}
	l.toA = nil

	status = client.Poll()
	require.NotZero(t, status&RecvComplete)
	payload, _, ok = client.Peek()
	require.True(t, ok)
	require.Equal(t, []byte{0x50, 0x03, 0x00, 0x32, 0x00, 0xC8}, payload)
}
