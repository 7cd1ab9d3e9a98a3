package stream

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/alcolock/pkg/link"
)

func TestConnPipe(t *testing.T) {
	a, b := net.Pipe()
	dev, veh := New(a), New(b)
	defer dev.Close()

	got := make(chan []byte, 1)
	_, err := veh.Subscribe(link.ChannelBACStatus, func(_ link.ChannelID, p []byte) { got <- p })
	require.NoError(t, err)

	go dev.Write(context.Background(), link.ChannelBACStatus, []byte{1, 2, 3})
	select {
	case p := <-got:
		require.Equal(t, []byte{1, 2, 3}, p)
	case <-time.After(time.Second):
		t.Fatal("frame not received")
	}

	require.NoError(t, veh.Close())
	select {
	case <-veh.Done():
	case <-time.After(time.Second):
		t.Fatal("read loop not stopped")
	}
	require.ErrorIs(t, veh.Write(context.Background(), link.ChannelBACStatus, nil), link.ErrClosed)
}

func TestTCP(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ln, err := link.Listen(ctx, "tcp://127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	addr := ln.(*Listener).Addr().String()

	accepted := make(chan link.Conn, 1)
	go func() {
		conn, err := ln.Accept(ctx)
		if err == nil {
			accepted <- conn
		}
	}()
	dev, err := link.Connect(ctx, "tcp://"+addr)
	require.NoError(t, err)
	defer dev.Close()
	veh := <-accepted
	defer veh.Close()

	got := make(chan []byte, 1)
	_, err = dev.Subscribe(link.ChannelVehicleCommand, func(_ link.ChannelID, p []byte) { got <- p })
	require.NoError(t, err)
	require.NoError(t, veh.Write(ctx, link.ChannelVehicleCommand, []byte{1}))
	select {
	case p := <-got:
		require.Equal(t, []byte{1}, p)
	case <-ctx.Done():
		t.Fatal("command not received")
	}
}
